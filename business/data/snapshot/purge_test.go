package snapshot

import (
	"testing"
	"time"

	"github.com/transitcast/realtime-timetable/business/data/gtfs"
)

func TestPurgePolicyRemovesOldOverlaysOnce(t *testing.T) {
	oldDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	buf := newSnapshot()
	pattern := testTripPattern(nil)
	tt, _ := gtfs.NewScheduledTripTimes(&gtfs.Trip{TripId: "t1"}, 1, []int{0}, []int{10})
	buf.update(pattern, oldDate, tt)

	policy := NewPurgePolicy(2)
	if !policy.apply(buf, now) {
		t.Fatal("expected the first purge to remove the old overlay")
	}
	if _, ok := buf.Overlay(pattern, oldDate); ok {
		t.Error("old overlay should have been removed")
	}

	// a second purge at the same or an equally-recent cutoff is a no-op,
	// even if something would otherwise match.
	tt2, _ := gtfs.NewScheduledTripTimes(&gtfs.Trip{TripId: "t2"}, 1, []int{0}, []int{10})
	buf.update(pattern, oldDate, tt2)
	if policy.apply(buf, now) {
		t.Error("expected a repeated purge at the same cutoff to be a no-op")
	}
}

func TestPurgePolicyAdvancesWithTime(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	buf := newSnapshot()
	pattern := testTripPattern(nil)
	tt1, _ := gtfs.NewScheduledTripTimes(&gtfs.Trip{TripId: "t1"}, 1, []int{0}, []int{10})
	tt2, _ := gtfs.NewScheduledTripTimes(&gtfs.Trip{TripId: "t2"}, 1, []int{0}, []int{10})
	buf.update(pattern, d1, tt1)
	buf.update(pattern, d2, tt2)

	policy := NewPurgePolicy(2)
	now1 := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	if !policy.apply(buf, now1) {
		t.Fatal("expected a removal at now1")
	}
	if _, ok := buf.Overlay(pattern, d1); ok {
		t.Error("d1 should be purged at now1")
	}
	if _, ok := buf.Overlay(pattern, d2); !ok {
		t.Error("d2 should survive at now1")
	}

	now2 := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if !policy.apply(buf, now2) {
		t.Fatal("expected a further removal once the cutoff advances past d2")
	}
	if _, ok := buf.Overlay(pattern, d2); ok {
		t.Error("d2 should be purged at now2")
	}
}
