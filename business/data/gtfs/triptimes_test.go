package gtfs

import "testing"

func TestNewScheduledTripTimesRejectsNonMonotone(t *testing.T) {
	trip := &Trip{TripId: "t1"}
	if _, err := NewScheduledTripTimes(trip, 1, []int{100, 50}, []int{100, 150}); err == nil {
		t.Error("expected an error for a non-monotone arrival array")
	}
}

func TestNewScheduledTripTimesStampsRealtime(t *testing.T) {
	trip := &Trip{TripId: "t1"}
	tt, err := NewScheduledTripTimes(trip, 1, []int{100, 200}, []int{110, 210})
	if err != nil {
		t.Fatalf("NewScheduledTripTimes: %v", err)
	}
	if !tt.Realtime {
		t.Error("expected Realtime to be true")
	}
	if tt.ArrivalSeconds[0] != 100 || tt.ArrivalSeconds[1] != 200 {
		t.Errorf("realtime arrival view = %v, want scheduled baseline copied", tt.ArrivalSeconds)
	}
}

func TestTripTimesCloneIsIndependent(t *testing.T) {
	trip := &Trip{TripId: "t1"}
	tt, _ := NewScheduledTripTimes(trip, 1, []int{100, 200}, []int{110, 210})
	clone := tt.Clone()
	clone.ArrivalSeconds[0] = 999

	if tt.ArrivalSeconds[0] != 100 {
		t.Errorf("mutating clone affected original: got %d", tt.ArrivalSeconds[0])
	}
}

func TestMarkCancelledLeavesOriginalUntouched(t *testing.T) {
	trip := &Trip{TripId: "t1"}
	tt, _ := NewScheduledTripTimes(trip, 1, []int{100, 200}, []int{110, 210})
	cancelled := tt.MarkCancelled()

	if tt.Cancelled {
		t.Error("original TripTimes was mutated")
	}
	if !cancelled.Cancelled {
		t.Error("clone was not marked cancelled")
	}
}

func TestWithArrivalAtRejectsBrokenMonotonicity(t *testing.T) {
	trip := &Trip{TripId: "t1"}
	tt, _ := NewScheduledTripTimes(trip, 1, []int{100, 200, 300}, []int{110, 210, 310})

	if _, err := tt.WithArrivalAt(0, 250); err == nil {
		t.Error("expected an error: new arrival at index 0 exceeds index 1's value")
	}

	updated, err := tt.WithArrivalAt(1, 150)
	if err != nil {
		t.Fatalf("WithArrivalAt: %v", err)
	}
	if updated.ArrivalSeconds[1] != 150 {
		t.Errorf("got %d, want 150", updated.ArrivalSeconds[1])
	}
	if tt.ArrivalSeconds[1] != 200 {
		t.Error("original was mutated")
	}
}

func TestWithArrivalAtOutOfRange(t *testing.T) {
	trip := &Trip{TripId: "t1"}
	tt, _ := NewScheduledTripTimes(trip, 1, []int{100}, []int{110})
	if _, err := tt.WithArrivalAt(5, 100); err == nil {
		t.Error("expected an error for an out-of-range index")
	}
}
