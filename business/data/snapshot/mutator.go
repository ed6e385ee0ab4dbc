package snapshot

import (
	"fmt"
	"sort"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/transitcast/realtime-timetable/business/data/gtfs"
)

// bufferMutator applies validated updates to the working buffer: retime,
// cancel, add, modify, replace (spec §4.4). Constructed fresh for each
// applyTripUpdates call; holds no state of its own beyond the references
// it was given.
type bufferMutator struct {
	buf   *Snapshot
	idx   *idIndex
	cache *tripPatternCache
	graph gtfs.Graph
}

// handleScheduledTrip layers the TripUpdate's per-stop deltas onto the
// base pattern's scheduled timetable. Declines (returns an error) if the
// trip or any named stop isn't on the base pattern, or if the resulting
// times would violate TripTimes monotonicity.
func (m *bufferMutator) handleScheduledTrip(tripId string, date time.Time, updates []*gtfsproto.TripUpdate_StopTimeUpdate) error {
	base, ok := m.idx.trip(tripId)
	if !ok {
		return fmt.Errorf("scheduled trip %s: unknown to graph", tripId)
	}
	if base.Pattern.Scheduled == nil {
		return fmt.Errorf("scheduled trip %s: pattern has no scheduled timetable", tripId)
	}

	midnight := gtfs.Midnight(date, m.graph.SystemTimeZone())
	deltas := make([]gtfs.StopTimeDelta, 0, len(updates))
	for i, u := range updates {
		stopIndex, ok := patternStopIndex(base.Pattern, u.GetStopId())
		if !ok {
			return fmt.Errorf("scheduled trip %s: stop_time_update[%d]: stop %q not on base pattern", tripId, i, u.GetStopId())
		}
		delta := gtfs.StopTimeDelta{PatternIndex: stopIndex}
		if u.GetArrival() != nil && u.Arrival.Time != nil {
			sec, err := gtfs.AbsoluteToServiceSeconds(u.GetArrival().GetTime(), midnight)
			if err != nil {
				return fmt.Errorf("scheduled trip %s: arrival: %w", tripId, err)
			}
			delta.HasArrivalSeconds = true
			delta.ArrivalSeconds = sec
		}
		if u.GetDeparture() != nil && u.Departure.Time != nil {
			sec, err := gtfs.AbsoluteToServiceSeconds(u.GetDeparture().GetTime(), midnight)
			if err != nil {
				return fmt.Errorf("scheduled trip %s: departure: %w", tripId, err)
			}
			delta.HasDepartureSeconds = true
			delta.DepartureSeconds = sec
		}
		deltas = append(deltas, delta)
	}

	updated, ok := base.Pattern.Scheduled.CreateUpdatedTripTimes(tripId, deltas)
	if !ok {
		return fmt.Errorf("scheduled trip %s: unresolvable retime deltas", tripId)
	}
	m.buf.update(base.Pattern, date, updated)
	return nil
}

// cancelScheduledTrip marks the base trip cancelled on date.
func (m *bufferMutator) cancelScheduledTrip(tripId string, date time.Time) error {
	base, ok := m.idx.trip(tripId)
	if !ok {
		return fmt.Errorf("cancel scheduled trip %s: unknown to graph", tripId)
	}
	if base.Pattern.Scheduled == nil {
		return fmt.Errorf("cancel scheduled trip %s: pattern has no scheduled timetable", tripId)
	}
	tt, _, found := base.Pattern.Scheduled.FindTripTimes(tripId)
	if !found {
		return fmt.Errorf("cancel scheduled trip %s: not present in scheduled timetable", tripId)
	}
	m.buf.update(base.Pattern, date, tt.MarkCancelled())
	return nil
}

// cancelPreviouslyAddedTrip marks a previously added/modified trip
// cancelled on date, consulting the buffer's lastAddedTripPattern
// bookkeeping to find it.
func (m *bufferMutator) cancelPreviouslyAddedTrip(tripId string, date time.Time) error {
	pattern, ok := m.buf.LastAddedPattern(tripId, date)
	if !ok {
		return fmt.Errorf("cancel added trip %s: no prior added instance on this date", tripId)
	}
	overlay, ok := m.buf.Overlay(pattern, date)
	if !ok {
		return fmt.Errorf("cancel added trip %s: overlay missing for its last-added pattern", tripId)
	}
	tt, _, found := overlay.FindTripTimes(tripId)
	if !found {
		return fmt.Errorf("cancel added trip %s: not present in its last-added overlay", tripId)
	}
	m.buf.update(pattern, date, tt.MarkCancelled())
	return nil
}

// addTrip synthesizes a Route and StopPattern from resolved, chooses a
// service id active on date, interns the pattern, and installs the new
// trip's TripTimes into the buffer, superseding any trip previously added
// under the same (tripId, date).
func (m *bufferMutator) addTrip(tripId, routeId string, date time.Time, resolved []resolvedStopTime) error {
	// cancel any previously-added instance under this id; absence is fine.
	_ = m.cancelPreviouslyAddedTrip(tripId, date)

	route, ok := m.idx.route(routeId)
	if !ok {
		route = gtfs.SynthesizeRoute(routeId, tripId)
	}

	serviceIds, err := m.graph.ServiceIDsOnDate(date)
	if err != nil {
		return fmt.Errorf("add trip %s: %w", tripId, err)
	}
	if len(serviceIds) == 0 {
		return fmt.Errorf("add trip %s: no service id active on %s", tripId, date.Format("2006-01-02"))
	}
	// Deterministic tie-break (spec §9 open question): lexicographically
	// smallest service id wins when more than one serves the date.
	sort.Strings(serviceIds)
	serviceId := serviceIds[0]

	serviceCode, err := m.graph.ServiceCode(serviceId)
	if err != nil {
		return fmt.Errorf("add trip %s: %w", tripId, err)
	}

	midnight := gtfs.Midnight(date, m.graph.SystemTimeZone())
	kept := make([]resolvedStopTime, 0, len(resolved))
	for _, r := range resolved {
		if r.stop != nil {
			kept = append(kept, r)
		}
	}
	n := len(kept)
	stops := make([]gtfs.StopPatternStop, n)
	arrival := make([]int, n)
	departure := make([]int, n)
	for i, r := range kept {
		pickup := gtfs.PickupDropoffRegular
		dropoff := gtfs.PickupDropoffRegular
		if i == 0 {
			dropoff = gtfs.PickupDropoffNone
		}
		if i == n-1 {
			pickup = gtfs.PickupDropoffNone
		}
		stops[i] = gtfs.StopPatternStop{Stop: r.stop, Pickup: pickup, Dropoff: dropoff}

		if r.arrivalAbsolute != nil {
			sec, err := gtfs.AbsoluteToServiceSeconds(*r.arrivalAbsolute, midnight)
			if err != nil {
				return fmt.Errorf("add trip %s: stop %d arrival: %w", tripId, i, err)
			}
			arrival[i] = sec
		} else if i > 0 {
			arrival[i] = arrival[i-1]
		}
		if r.departureAbsolute != nil {
			sec, err := gtfs.AbsoluteToServiceSeconds(*r.departureAbsolute, midnight)
			if err != nil {
				return fmt.Errorf("add trip %s: stop %d departure: %w", tripId, i, err)
			}
			departure[i] = sec
		} else if i > 0 {
			departure[i] = departure[i-1]
		}
	}

	stopPattern := gtfs.StopPattern{Stops: stops}
	pattern := m.cache.getOrCreate(stopPattern, route, gtfs.NewServiceCodeSet(serviceCode))
	m.buf.registerPatternRoute(pattern, route)
	pattern.EnsureServiceCode(serviceCode)

	trip := &gtfs.Trip{TripId: tripId, RouteId: route.RouteId, ServiceId: serviceId}
	newTimes, err := m.graph.Deduplicate(trip, serviceCode, arrival, departure)
	if err != nil {
		return fmt.Errorf("add trip %s: %w", tripId, err)
	}
	newTimes.StampRealtime()

	m.buf.update(pattern, date, newTimes)
	m.buf.setLastAddedPattern(tripId, date, pattern)
	return nil
}

// modify cancels the scheduled instance and any prior added instance, then
// adds the new trip as ADDED would.
func (m *bufferMutator) modify(tripId, routeId string, date time.Time, resolved []resolvedStopTime) error {
	_ = m.cancelScheduledTrip(tripId, date)
	_ = m.cancelPreviouslyAddedTrip(tripId, date)
	return m.addTrip(tripId, routeId, date, resolved)
}

// canceled attempts both cancel paths, succeeding if either did.
func (m *bufferMutator) canceled(tripId string, date time.Time) error {
	scheduledErr := m.cancelScheduledTrip(tripId, date)
	addedErr := m.cancelPreviouslyAddedTrip(tripId, date)
	if scheduledErr == nil || addedErr == nil {
		return nil
	}
	return fmt.Errorf("cancel trip %s: %v; %v", tripId, scheduledErr, addedErr)
}

// patternStopIndex returns the position of stopId in pattern's stop
// sequence, ignoring SKIPPED holes (which carry a nil Stop).
func patternStopIndex(pattern *gtfs.TripPattern, stopId string) (int, bool) {
	for i, s := range pattern.Pattern.Stops {
		if s.Stop != nil && s.Stop.StopId == stopId {
			return i, true
		}
	}
	return 0, false
}
