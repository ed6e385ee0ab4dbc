package snapshot

import (
	"testing"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/transitcast/realtime-timetable/business/data/gtfs"
)

func newTestMutator(t *testing.T, graph *fakeGraph) (*bufferMutator, *Snapshot) {
	t.Helper()
	idx := newIdIndex()
	idx.ensureBuilt(graph, nil)
	buf := newSnapshot()
	cache := newTripPatternCache()
	return &bufferMutator{buf: buf, idx: idx, cache: cache, graph: graph}, buf
}

func TestHandleScheduledTripRetimesWithoutAlteringOthers(t *testing.T) {
	graph := newFakeGraph()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, graph.SystemTimeZone())
	midnight := gtfs.Midnight(date, graph.SystemTimeZone())
	pattern, err := graph.addScheduledTrip("t1", "r1", "weekday", 1, []string{"a", "b"}, []int{0, 100}, []int{10, 110}, date)
	if err != nil {
		t.Fatalf("addScheduledTrip: %v", err)
	}

	m, buf := newTestMutator(t, graph)
	newArrival := midnight.Add(200 * time.Second).Unix()
	err = m.handleScheduledTrip("t1", date, []*gtfsproto.TripUpdate_StopTimeUpdate{
		stu("b", i64Ptr(newArrival), nil),
	})
	if err != nil {
		t.Fatalf("handleScheduledTrip: %v", err)
	}

	overlay, ok := buf.Overlay(pattern, date)
	if !ok {
		t.Fatal("expected an overlay after a scheduled retime")
	}
	tt, _, found := overlay.FindTripTimes("t1")
	if !found {
		t.Fatal("expected t1 in the overlay")
	}
	if tt.ArrivalSeconds[1] != 200 {
		t.Errorf("got arrival %d, want 200", tt.ArrivalSeconds[1])
	}
	if tt.ArrivalSeconds[0] != 0 {
		t.Error("the untouched stop's arrival should be unchanged")
	}
}

func TestHandleScheduledTripRejectsUnknownStop(t *testing.T) {
	graph := newFakeGraph()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, graph.SystemTimeZone())
	_, err := graph.addScheduledTrip("t1", "r1", "weekday", 1, []string{"a", "b"}, []int{0, 100}, []int{10, 110}, date)
	if err != nil {
		t.Fatalf("addScheduledTrip: %v", err)
	}

	m, _ := newTestMutator(t, graph)
	err = m.handleScheduledTrip("t1", date, []*gtfsproto.TripUpdate_StopTimeUpdate{
		stu("ghost", i64Ptr(100), nil),
	})
	if err == nil {
		t.Error("expected an error for a stop not on the base pattern")
	}
}

func TestCancelScheduledTrip(t *testing.T) {
	graph := newFakeGraph()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, graph.SystemTimeZone())
	pattern, err := graph.addScheduledTrip("t1", "r1", "weekday", 1, []string{"a", "b"}, []int{0, 100}, []int{10, 110}, date)
	if err != nil {
		t.Fatalf("addScheduledTrip: %v", err)
	}

	m, buf := newTestMutator(t, graph)
	if err := m.cancelScheduledTrip("t1", date); err != nil {
		t.Fatalf("cancelScheduledTrip: %v", err)
	}

	overlay, _ := buf.Overlay(pattern, date)
	tt, _, found := overlay.FindTripTimes("t1")
	if !found || !tt.Cancelled {
		t.Error("expected t1 to be cancelled in the overlay")
	}
}

func TestAddTripCreatesNewPatternAndInterns(t *testing.T) {
	graph := newFakeGraph()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, graph.SystemTimeZone())
	graph.serviceCodes["weekday"] = 1
	graph.activeOn[dateKey(date)] = []string{"weekday"}
	stopA := &gtfs.Stop{StopId: "a"}
	stopB := &gtfs.Stop{StopId: "b"}
	graph.stops = append(graph.stops, stopA, stopB)

	m, buf := newTestMutator(t, graph)
	midnight := gtfs.Midnight(date, graph.SystemTimeZone())
	resolved := []resolvedStopTime{
		{stop: stopA, departureAbsolute: int64Ptr(midnight.Add(0 * time.Second).Unix())},
		{stop: stopB, arrivalAbsolute: int64Ptr(midnight.Add(100 * time.Second).Unix())},
	}

	if err := m.addTrip("added1", "r9", date, resolved); err != nil {
		t.Fatalf("addTrip: %v", err)
	}

	pattern, ok := buf.LastAddedPattern("added1", date)
	if !ok {
		t.Fatal("expected LastAddedPattern to record the new trip's pattern")
	}
	overlay, ok := buf.Overlay(pattern, date)
	if !ok {
		t.Fatal("expected an overlay for the new pattern")
	}
	tt, _, found := overlay.FindTripTimes("added1")
	if !found {
		t.Fatal("expected added1 in the overlay")
	}
	if !tt.Realtime {
		t.Error("added trip's TripTimes should be stamped realtime")
	}
	if tt.ArrivalSeconds[1] != 100 {
		t.Errorf("got %d, want 100", tt.ArrivalSeconds[1])
	}

	// adding a second trip over the identical stop pattern should reuse the
	// interned TripPattern rather than creating a new one.
	if err := m.addTrip("added2", "r9", date, resolved); err != nil {
		t.Fatalf("addTrip (second): %v", err)
	}
	pattern2, _ := buf.LastAddedPattern("added2", date)
	if pattern2 != pattern {
		t.Error("expected the structurally identical pattern to be reused from the cache")
	}
}

func TestAddTripDropsSkippedHolesFromThePattern(t *testing.T) {
	graph := newFakeGraph()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, graph.SystemTimeZone())
	graph.serviceCodes["weekday"] = 1
	graph.activeOn[dateKey(date)] = []string{"weekday"}
	stopA := &gtfs.Stop{StopId: "a"}
	stopC := &gtfs.Stop{StopId: "c"}
	graph.stops = append(graph.stops, stopA, stopC)

	m, buf := newTestMutator(t, graph)
	midnight := gtfs.Midnight(date, graph.SystemTimeZone())
	resolved := []resolvedStopTime{
		{stop: stopA, departureAbsolute: int64Ptr(midnight.Add(0 * time.Second).Unix())},
		{stop: nil},
		{stop: stopC, arrivalAbsolute: int64Ptr(midnight.Add(100 * time.Second).Unix())},
	}

	if err := m.addTrip("added1", "r9", date, resolved); err != nil {
		t.Fatalf("addTrip: %v", err)
	}

	pattern, ok := buf.LastAddedPattern("added1", date)
	if !ok {
		t.Fatal("expected LastAddedPattern to record the new trip's pattern")
	}
	if len(pattern.Pattern.Stops) != 2 {
		t.Fatalf("expected the skipped stop to be dropped from the pattern, got %d stops", len(pattern.Pattern.Stops))
	}
	if pattern.Pattern.Stops[0].Stop.StopId != "a" || pattern.Pattern.Stops[1].Stop.StopId != "c" {
		t.Errorf("expected pattern [a, c], got %+v", pattern.Pattern.Stops)
	}

	overlay, ok := buf.Overlay(pattern, date)
	if !ok {
		t.Fatal("expected an overlay for the new pattern")
	}
	tt, _, found := overlay.FindTripTimes("added1")
	if !found {
		t.Fatal("expected added1 in the overlay")
	}
	if len(tt.ArrivalSeconds) != 2 {
		t.Fatalf("expected 2 stop times, got %d", len(tt.ArrivalSeconds))
	}
	if tt.ArrivalSeconds[1] != 100 {
		t.Errorf("got %d, want 100 for stop c's arrival", tt.ArrivalSeconds[1])
	}
}

func TestCanceledSucceedsIfEitherCancelSucceeds(t *testing.T) {
	graph := newFakeGraph()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, graph.SystemTimeZone())
	_, err := graph.addScheduledTrip("t1", "r1", "weekday", 1, []string{"a", "b"}, []int{0, 100}, []int{10, 110}, date)
	if err != nil {
		t.Fatalf("addScheduledTrip: %v", err)
	}

	m, _ := newTestMutator(t, graph)
	if err := m.canceled("t1", date); err != nil {
		t.Fatalf("canceled: %v", err)
	}
	if err := m.canceled("unknown-trip", date); err == nil {
		t.Error("expected an error: neither cancel path succeeds for an unknown trip")
	}
}

func int64Ptr(v int64) *int64 { return &v }
