// Package gtfs provides the static-graph data model the snapshot engine
// overlays: stops, routes, trips, calendars, and the stop-pattern/timetable
// types a TripPatternCache interns and a TimetableSnapshot indexes.
package gtfs

// Stop is a transit stop owned by the static graph. The snapshot engine
// holds non-owning references to Stops and never mutates them.
type Stop struct {
	DataSetId int64  `db:"data_set_id"`
	StopId    string `db:"stop_id"`
	StopCode  string `db:"stop_code"`
	StopName  string `db:"stop_name"`
	Latitude  float64 `db:"stop_lat"`
	Longitude float64 `db:"stop_lon"`
}

func RecordStops(stops []*Stop, dsTx *DataSetTransaction) error {
	for _, stop := range stops {
		stop.DataSetId = dsTx.DS.Id
	}
	statementString := "insert into stop ( " +
		"data_set_id, " +
		"stop_id, " +
		"stop_code, " +
		"stop_name, " +
		"stop_lat, " +
		"stop_lon) " +
		"values (" +
		":data_set_id, " +
		":stop_id, " +
		":stop_code, " +
		":stop_name, " +
		":stop_lat, " +
		":stop_lon)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, stops)
	return err
}

// Route is a transit route owned by the static graph, or a placeholder
// synthesized by the BufferMutator for a trip the graph never defined.
type Route struct {
	DataSetId int64  `db:"data_set_id"`
	RouteId   string `db:"route_id"`
	AgencyId  string `db:"agency_id"`
	ShortName string `db:"route_short_name"`
	LongName  string `db:"route_long_name"`
	Modality  int    `db:"route_type"`
}

func RecordRoutes(routes []*Route, dsTx *DataSetTransaction) error {
	for _, route := range routes {
		route.DataSetId = dsTx.DS.Id
	}
	statementString := "insert into route ( " +
		"data_set_id, " +
		"route_id, " +
		"agency_id, " +
		"route_short_name, " +
		"route_long_name, " +
		"route_type) " +
		"values (" +
		":data_set_id, " +
		":route_id, " +
		":agency_id, " +
		":route_short_name, " +
		":route_long_name, " +
		":route_type)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, routes)
	return err
}

// placeholderAgencyId is used when a synthesized Route has no agency to
// inherit one from.
const placeholderAgencyId = "unknown"

// defaultModality is the route_type used for a synthesized Route (3 == bus
// under the GTFS route_type enumeration, the most common case for an
// unplanned insertion).
const defaultModality = 3

// SynthesizeRoute builds the Route the BufferMutator attaches to a trip
// added by a realtime message that names no known route: id is the
// provided routeId if non-empty, else the trip's own id; long name is the
// trip id so the origin of the placeholder is visible downstream.
func SynthesizeRoute(routeId, tripId string) *Route {
	id := routeId
	if id == "" {
		id = tripId
	}
	return &Route{
		RouteId:  id,
		AgencyId: placeholderAgencyId,
		Modality: defaultModality,
		LongName: tripId,
	}
}

// Trip contains data from a gtfs trip definition in a trips.txt file, or a
// Trip synthesized by the BufferMutator for an ADDED TripUpdate.
type Trip struct {
	DataSetId     int64   `db:"data_set_id"`
	TripId        string  `db:"trip_id"`
	RouteId       string  `db:"route_id"`
	ServiceId     string  `db:"service_id"`
	TripHeadsign  *string `db:"trip_headsign"`
	TripShortName *string `db:"trip_short_name"`
	BlockId       *string `db:"block_id"`
	DirectionId   *int    `db:"direction_id"`
}

func RecordTrips(trips []*Trip, dsTx *DataSetTransaction) error {
	for _, trip := range trips {
		trip.DataSetId = dsTx.DS.Id
	}
	statementString := "insert into trip ( " +
		"data_set_id, " +
		"trip_id, " +
		"route_id, " +
		"service_id, " +
		"trip_headsign, " +
		"trip_short_name, " +
		"block_id, " +
		"direction_id) " +
		"values (" +
		":data_set_id, " +
		":trip_id, " +
		":route_id, " +
		":service_id, " +
		":trip_headsign, " +
		":trip_short_name, " +
		":block_id, " +
		":direction_id)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, trips)
	return err
}

// PickupDropoffPolicy mirrors the GTFS pickup_type/drop_off_type enumeration.
type PickupDropoffPolicy int

const (
	PickupDropoffRegular PickupDropoffPolicy = iota
	PickupDropoffNone
	PickupDropoffPhoneAgency
	PickupDropoffCoordinateWithDriver
)

// Timepoint mirrors the GTFS stop_times.txt timepoint column.
type Timepoint int

const (
	TimepointApproximate Timepoint = iota
	TimepointExact
)
