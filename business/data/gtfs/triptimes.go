package gtfs

import "fmt"

// MaxServiceSeconds bounds a TripTimes arrival/departure value: 48 hours
// from service-date midnight, matching GTFS's convention of trips that run
// past midnight rather than rolling over to the next service date.
const MaxServiceSeconds = 48 * 60 * 60

// TripTimes holds one trip's arrival/departure arrays for a Timetable.
// ScheduledArrivalSeconds/ScheduledDepartureSeconds are the baseline values
// from graph load (or, for a dynamically-added trip, the values computed
// at add time); ArrivalSeconds/DepartureSeconds are the realtime view a
// reader actually sees, and start out equal to the scheduled arrays.
// Invariant: within each array, values are non-decreasing and lie in
// [0, MaxServiceSeconds].
type TripTimes struct {
	Trip        *Trip
	ServiceCode int
	Cancelled   bool
	Realtime    bool

	ScheduledArrivalSeconds   []int
	ScheduledDepartureSeconds []int
	ArrivalSeconds            []int
	DepartureSeconds          []int
}

// NewScheduledTripTimes builds a TripTimes whose realtime view equals its
// scheduled baseline.
func NewScheduledTripTimes(trip *Trip, serviceCode int, arrival, departure []int) (*TripTimes, error) {
	if err := validateMonotoneInRange(arrival); err != nil {
		return nil, fmt.Errorf("arrival times: %w", err)
	}
	if err := validateMonotoneInRange(departure); err != nil {
		return nil, fmt.Errorf("departure times: %w", err)
	}
	tt := &TripTimes{
		Trip:                      trip,
		ServiceCode:               serviceCode,
		ScheduledArrivalSeconds:   arrival,
		ScheduledDepartureSeconds: departure,
	}
	tt.StampRealtime()
	return tt, nil
}

// StampRealtime overwrites the realtime arrays from the scheduled baseline
// without altering values, marking the TripTimes as a realtime instance.
func (t *TripTimes) StampRealtime() {
	t.ArrivalSeconds = append([]int(nil), t.ScheduledArrivalSeconds...)
	t.DepartureSeconds = append([]int(nil), t.ScheduledDepartureSeconds...)
	t.Realtime = true
}

// Clone produces a deep copy safe to mutate independently of t.
func (t *TripTimes) Clone() *TripTimes {
	clone := *t
	clone.ScheduledArrivalSeconds = append([]int(nil), t.ScheduledArrivalSeconds...)
	clone.ScheduledDepartureSeconds = append([]int(nil), t.ScheduledDepartureSeconds...)
	clone.ArrivalSeconds = append([]int(nil), t.ArrivalSeconds...)
	clone.DepartureSeconds = append([]int(nil), t.DepartureSeconds...)
	return &clone
}

// MarkCancelled returns a clone of t with Cancelled set, leaving t itself
// untouched (t may still be reachable from a published snapshot).
func (t *TripTimes) MarkCancelled() *TripTimes {
	clone := t.Clone()
	clone.Cancelled = true
	return clone
}

// WithArrivalAt returns a clone of t with the realtime arrival at index i
// replaced by seconds, or an error if doing so would break monotonicity of
// the realtime arrival array.
func (t *TripTimes) WithArrivalAt(i, seconds int) (*TripTimes, error) {
	if i < 0 || i >= len(t.ArrivalSeconds) {
		return nil, fmt.Errorf("stop index %d out of range", i)
	}
	clone := t.Clone()
	clone.ArrivalSeconds[i] = seconds
	if err := validateMonotoneInRange(clone.ArrivalSeconds); err != nil {
		return nil, fmt.Errorf("updated arrival times: %w", err)
	}
	clone.Realtime = true
	return clone, nil
}

// WithDepartureAt returns a clone of t with the realtime departure at
// index i replaced by seconds, or an error if doing so would break
// monotonicity of the realtime departure array.
func (t *TripTimes) WithDepartureAt(i, seconds int) (*TripTimes, error) {
	if i < 0 || i >= len(t.DepartureSeconds) {
		return nil, fmt.Errorf("stop index %d out of range", i)
	}
	clone := t.Clone()
	clone.DepartureSeconds[i] = seconds
	if err := validateMonotoneInRange(clone.DepartureSeconds); err != nil {
		return nil, fmt.Errorf("updated departure times: %w", err)
	}
	clone.Realtime = true
	return clone, nil
}

func validateMonotoneInRange(seconds []int) error {
	prev := -1
	for i, s := range seconds {
		if s < 0 || s > MaxServiceSeconds {
			return fmt.Errorf("value %d at index %d outside [0, %d]", s, i, MaxServiceSeconds)
		}
		if s < prev {
			return fmt.Errorf("value %d at index %d is less than preceding value %d", s, i, prev)
		}
		prev = s
	}
	return nil
}
