package gtfs

import (
	"fmt"
	"time"
)

// StopTimeDelta describes one stop-time update already resolved to a
// position in a TripPattern (the validator, not this package, maps raw
// GTFS-realtime stop_sequence/stop_id references to pattern positions).
type StopTimeDelta struct {
	PatternIndex        int
	HasArrivalSeconds   bool
	ArrivalSeconds      int
	HasDepartureSeconds bool
	DepartureSeconds    int
}

// Timetable is a TripPattern plus an ordered collection of TripTimes for a
// specific service date. A TripPattern's Scheduled field holds the one
// Timetable that is immutable after graph load; every other Timetable is a
// realtime overlay built by the BufferMutator.
type Timetable struct {
	Pattern     *TripPattern
	ServiceDate time.Time
	tripTimes   []*TripTimes
}

// NewTimetable builds a Timetable for pattern on serviceDate.
func NewTimetable(pattern *TripPattern, serviceDate time.Time, tripTimes ...*TripTimes) *Timetable {
	return &Timetable{
		Pattern:     pattern,
		ServiceDate: serviceDate,
		tripTimes:   append([]*TripTimes(nil), tripTimes...),
	}
}

// TripTimes returns every TripTimes in the timetable, in insertion order.
func (t *Timetable) TripTimes() []*TripTimes {
	return t.tripTimes
}

// FindTripTimes returns the TripTimes for tripId, its index, and whether it
// was found.
func (t *Timetable) FindTripTimes(tripId string) (*TripTimes, int, bool) {
	for i, tt := range t.tripTimes {
		if tt.Trip != nil && tt.Trip.TripId == tripId {
			return tt, i, true
		}
	}
	return nil, -1, false
}

// Clone returns a Timetable sharing no mutable state with t; t itself is
// left untouched (copy-on-write: overlays reachable from a published
// snapshot are never mutated).
func (t *Timetable) Clone() *Timetable {
	clone := &Timetable{
		Pattern:     t.Pattern,
		ServiceDate: t.ServiceDate,
		tripTimes:   append([]*TripTimes(nil), t.tripTimes...),
	}
	return clone
}

// WithTripTimes returns a clone of t with newTimes replacing any existing
// entry for the same trip id, or appended if there is none.
func (t *Timetable) WithTripTimes(newTimes *TripTimes) *Timetable {
	clone := t.Clone()
	if _, idx, found := clone.FindTripTimes(newTimes.Trip.TripId); found {
		clone.tripTimes[idx] = newTimes
	} else {
		clone.tripTimes = append(clone.tripTimes, newTimes)
	}
	return clone
}

// CreateUpdatedTripTimes layers deltas onto the baseline TripTimes for
// tripId, returning a new realtime TripTimes. It declines (returns false)
// if tripId isn't in this timetable, a delta names an out-of-range
// position, or the result would violate TripTimes monotonicity.
func (t *Timetable) CreateUpdatedTripTimes(tripId string, deltas []StopTimeDelta) (*TripTimes, bool) {
	base, _, found := t.FindTripTimes(tripId)
	if !found {
		return nil, false
	}
	updated := base.Clone()
	for _, d := range deltas {
		if d.PatternIndex < 0 || d.PatternIndex >= len(updated.ArrivalSeconds) {
			return nil, false
		}
		if d.HasArrivalSeconds {
			updated.ArrivalSeconds[d.PatternIndex] = d.ArrivalSeconds
		}
		if d.HasDepartureSeconds {
			updated.DepartureSeconds[d.PatternIndex] = d.DepartureSeconds
		}
	}
	if err := validateMonotoneInRange(updated.ArrivalSeconds); err != nil {
		return nil, false
	}
	if err := validateMonotoneInRange(updated.DepartureSeconds); err != nil {
		return nil, false
	}
	updated.Realtime = true
	return updated, true
}

// Midnight returns serviceDate's midnight as a wall-clock time in loc. Used
// to convert absolute wire times into seconds-from-midnight for scheduled
// retiming and added-trip construction.
func Midnight(serviceDate time.Time, loc *time.Location) time.Time {
	return time.Date(serviceDate.Year(), serviceDate.Month(), serviceDate.Day(), 0, 0, 0, 0, loc)
}

// AbsoluteToServiceSeconds converts an absolute POSIX timestamp to service
// seconds since midnight, rejecting values outside [0, MaxServiceSeconds].
func AbsoluteToServiceSeconds(absoluteUnix int64, midnight time.Time) (int, error) {
	offset := TimeToServiceSeconds(midnight, time.Unix(absoluteUnix, 0).In(midnight.Location()))
	if offset < 0 || offset > MaxServiceSeconds {
		return 0, fmt.Errorf("offset %d outside [0, %d]", offset, MaxServiceSeconds)
	}
	return offset, nil
}
