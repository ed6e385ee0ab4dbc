package snapshot

import (
	"fmt"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/transitcast/realtime-timetable/business/data/gtfs"
)

// resolvedStopTime is one position in a validated fresh-trip stop list:
// stop is nil for a SKIPPED hole, arrivalAbsolute/departureAbsolute are the
// raw wire POSIX seconds (nil when the field was absent).
type resolvedStopTime struct {
	stop              *gtfs.Stop
	arrivalAbsolute   *int64
	departureAbsolute *int64
}

// validateFreshTrip runs the structural checks spec §4.3 lists for a
// TripUpdate that defines a new stop pattern (ADDED, or MODIFIED via the
// classifier's promotion rule), returning the ordered resolved stop list
// or the first validation failure encountered.
func validateFreshTrip(idx *idIndex, updates []*gtfsproto.TripUpdate_StopTimeUpdate) ([]resolvedStopTime, error) {
	resolved := make([]resolvedStopTime, 0, len(updates))

	var lastSeq int64 = -1
	haveSeq := false
	for i, u := range updates {
		skipped := u.GetScheduleRelationship() == gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED

		var stop *gtfs.Stop
		if !skipped {
			stopId := u.GetStopId()
			if stopId == "" {
				return nil, fmt.Errorf("stop_time_update[%d]: missing stop_id", i)
			}
			s, ok := idx.stop(stopId)
			if !ok {
				return nil, fmt.Errorf("stop_time_update[%d]: unknown stop id %q", i, stopId)
			}
			stop = s
		}

		if u.StopSequence != nil {
			seq := int64(u.GetStopSequence())
			if seq < 0 {
				return nil, fmt.Errorf("stop_time_update[%d]: negative stop_sequence", i)
			}
			if haveSeq && seq < lastSeq {
				return nil, fmt.Errorf("stop_time_update[%d]: stop_sequence %d precedes %d", i, seq, lastSeq)
			}
			lastSeq = seq
			haveSeq = true
		}

		var arrival, departure *int64
		if u.GetArrival() != nil && u.GetArrival().Time != nil {
			t := u.GetArrival().GetTime()
			arrival = &t
		}
		if u.GetDeparture() != nil && u.GetDeparture().Time != nil {
			t := u.GetDeparture().GetTime()
			departure = &t
		}

		resolved = append(resolved, resolvedStopTime{
			stop:              stop,
			arrivalAbsolute:   arrival,
			departureAbsolute: departure,
		})
	}

	if err := validateMonotoneCursor(resolved); err != nil {
		return nil, err
	}
	if err := validateMissingArrivalPrefix(resolved); err != nil {
		return nil, err
	}
	if err := validateMissingDepartureSuffix(resolved); err != nil {
		return nil, err
	}
	if len(resolved) < 2 {
		return nil, fmt.Errorf("fewer than two stop_time_updates")
	}

	return resolved, nil
}

// validateMonotoneCursor checks arrival and departure readings against one
// shared cursor, in reading order: arrival(i), departure(i), arrival(i+1), ...
func validateMonotoneCursor(resolved []resolvedStopTime) error {
	var cursor int64
	have := false
	for i, r := range resolved {
		if r.arrivalAbsolute != nil {
			if have && *r.arrivalAbsolute < cursor {
				return fmt.Errorf("arrival at index %d precedes an earlier time", i)
			}
			cursor = *r.arrivalAbsolute
			have = true
		}
		if r.departureAbsolute != nil {
			if have && *r.departureAbsolute < cursor {
				return fmt.Errorf("departure at index %d precedes an earlier time", i)
			}
			cursor = *r.departureAbsolute
			have = true
		}
	}
	return nil
}

// validateMissingArrivalPrefix requires that any non-skipped stop missing
// an arrival appear only before the first non-skipped stop that has one.
func validateMissingArrivalPrefix(resolved []resolvedStopTime) error {
	seenArrival := false
	for i, r := range resolved {
		if r.stop == nil {
			continue
		}
		if r.arrivalAbsolute != nil {
			seenArrival = true
			continue
		}
		if seenArrival {
			return fmt.Errorf("stop %d is missing an arrival after an earlier stop had one", i)
		}
	}
	return nil
}

// validateMissingDepartureSuffix requires that any non-skipped stop
// missing a departure appear only after the last non-skipped stop that has
// one — symmetric to validateMissingArrivalPrefix.
func validateMissingDepartureSuffix(resolved []resolvedStopTime) error {
	seenMissing := false
	for i, r := range resolved {
		if r.stop == nil {
			continue
		}
		if r.departureAbsolute == nil {
			seenMissing = true
			continue
		}
		if seenMissing {
			return fmt.Errorf("stop %d has a departure after an earlier stop was missing one", i)
		}
	}
	return nil
}

// checkAddedPreconditions validates the precondition spec §4.3 lists for
// an ADDED TripUpdate, before validateFreshTrip runs.
func checkAddedPreconditions(idx *idIndex, tripId, startDate string) error {
	if tripId == "" {
		return fmt.Errorf("added trip: missing trip_id")
	}
	if startDate == "" {
		return fmt.Errorf("added trip %s: missing start_date", tripId)
	}
	if _, exists := idx.trip(tripId); exists {
		return fmt.Errorf("added trip %s: already exists in graph", tripId)
	}
	return nil
}

// checkModifiedPreconditions validates the precondition spec §4.3 lists
// for a MODIFIED TripUpdate, before validateFreshTrip runs. serviceIds is
// the set of service ids the calendar service reports active on the
// update's service date.
func checkModifiedPreconditions(idx *idIndex, tripId, startDate string, serviceIds []string) (gtfs.GraphTrip, error) {
	if tripId == "" {
		return gtfs.GraphTrip{}, fmt.Errorf("modified trip: missing trip_id")
	}
	if startDate == "" {
		return gtfs.GraphTrip{}, fmt.Errorf("modified trip %s: missing start_date", tripId)
	}
	base, exists := idx.trip(tripId)
	if !exists {
		return gtfs.GraphTrip{}, fmt.Errorf("modified trip %s: unknown to graph", tripId)
	}
	for _, sid := range serviceIds {
		if sid == base.Trip.ServiceId {
			return base, nil
		}
	}
	return gtfs.GraphTrip{}, fmt.Errorf("modified trip %s: service %s does not run on this date", tripId, base.Trip.ServiceId)
}
