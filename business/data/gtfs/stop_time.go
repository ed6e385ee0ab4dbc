package gtfs

// StopTimeRow contains one row of a gtfs stop_times.txt file: a scheduled
// arrival and departure at a stop, in seconds from service-date midnight.
// This is the loader's on-disk shape; StopPattern/TripTimes are what the
// snapshot engine actually works with.
type StopTimeRow struct {
	DataSetId         int64    `db:"data_set_id"`
	TripId            string   `db:"trip_id"`
	StopSequence      int      `db:"stop_sequence"`
	StopId            string   `db:"stop_id"`
	ArrivalTime       int      `db:"arrival_time"`
	DepartureTime     int      `db:"departure_time"`
	PickupType        int      `db:"pickup_type"`
	DropOffType       int      `db:"drop_off_type"`
	Timepoint         int      `db:"timepoint"`
	ShapeDistTraveled *float64 `db:"shape_dist_traveled"`
}

func RecordStopTimes(stopTimes []*StopTimeRow, dsTx *DataSetTransaction) error {
	for _, stopTime := range stopTimes {
		stopTime.DataSetId = dsTx.DS.Id
	}

	statementString := "insert into stop_time ( " +
		"data_set_id, " +
		"trip_id, " +
		"stop_sequence, " +
		"stop_id, " +
		"arrival_time, " +
		"departure_time, " +
		"pickup_type, " +
		"drop_off_type, " +
		"timepoint, " +
		"shape_dist_traveled) " +
		"values (" +
		":data_set_id, " +
		":trip_id, " +
		":stop_sequence, " +
		":stop_id, " +
		":arrival_time, " +
		":departure_time, " +
		":pickup_type, " +
		":drop_off_type, " +
		":timepoint, " +
		":shape_dist_traveled)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, stopTimes)
	return err
}

// PickupDropoffPolicyFromGTFS maps a raw pickup_type/drop_off_type column
// value to a PickupDropoffPolicy.
func PickupDropoffPolicyFromGTFS(value int) PickupDropoffPolicy {
	switch value {
	case 1:
		return PickupDropoffNone
	case 2:
		return PickupDropoffPhoneAgency
	case 3:
		return PickupDropoffCoordinateWithDriver
	default:
		return PickupDropoffRegular
	}
}

// TimepointFromGTFS maps a raw timepoint column value to a Timepoint.
func TimepointFromGTFS(value int) Timepoint {
	if value == 0 {
		return TimepointApproximate
	}
	return TimepointExact
}
