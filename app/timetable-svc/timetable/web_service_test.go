package timetable

import (
	"testing"
	"time"

	"github.com/transitcast/realtime-timetable/business/data/gtfs"
	"github.com/transitcast/realtime-timetable/business/data/snapshot"
)

func testEntry(t *testing.T) (snapshot.OverlayEntry, *gtfs.TripTimes) {
	t.Helper()
	route := &gtfs.Route{RouteId: "r1"}
	pattern := gtfs.NewTripPattern(route, gtfs.StopPattern{Stops: []gtfs.StopPatternStop{
		{Stop: &gtfs.Stop{StopId: "a"}},
		{Stop: &gtfs.Stop{StopId: "b"}},
	}}, nil, gtfs.NewServiceCodeSet(1))

	tt, err := gtfs.NewScheduledTripTimes(&gtfs.Trip{TripId: "t1"}, 1, []int{0, 100}, []int{10, 110})
	if err != nil {
		t.Fatalf("NewScheduledTripTimes: %v", err)
	}
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entry := snapshot.OverlayEntry{Pattern: pattern, Date: date, Timetable: gtfs.NewTimetable(pattern, date, tt)}
	return entry, tt
}

func TestBuildTripUpdateEntityCarriesTripAndRoute(t *testing.T) {
	entry, tt := testEntry(t)
	fe := buildTripUpdateEntity(entry, tt)

	if fe.GetTripUpdate().GetTrip().GetTripId() != "t1" {
		t.Errorf("got trip id %q", fe.GetTripUpdate().GetTrip().GetTripId())
	}
	if fe.GetTripUpdate().GetTrip().GetRouteId() != "r1" {
		t.Errorf("got route id %q", fe.GetTripUpdate().GetTrip().GetRouteId())
	}
	stus := fe.GetTripUpdate().GetStopTimeUpdate()
	if len(stus) != 2 {
		t.Fatalf("expected 2 stop time updates, got %d", len(stus))
	}
	if stus[0].GetStopId() != "a" || stus[1].GetStopId() != "b" {
		t.Errorf("stop ids out of order: %q, %q", stus[0].GetStopId(), stus[1].GetStopId())
	}
	if stus[0].GetArrival().GetDelay() != 0 {
		t.Errorf("expected zero delay for an unmodified scheduled trip, got %d", stus[0].GetArrival().GetDelay())
	}
}

func TestBuildTripUpdateEntityReflectsRealtimeDelay(t *testing.T) {
	entry, tt := testEntry(t)
	retimed, err := tt.WithArrivalAt(1, 250)
	if err != nil {
		t.Fatalf("WithArrivalAt: %v", err)
	}

	fe := buildTripUpdateEntity(entry, retimed)
	stus := fe.GetTripUpdate().GetStopTimeUpdate()
	if stus[1].GetArrival().GetDelay() != 150 {
		t.Errorf("expected a 150s arrival delay at stop b, got %d", stus[1].GetArrival().GetDelay())
	}
}

func TestBuildTripUpdateEntityMarksCancelled(t *testing.T) {
	entry, tt := testEntry(t)
	cancelled := tt.MarkCancelled()

	fe := buildTripUpdateEntity(entry, cancelled)
	if fe.GetTripUpdate().GetTrip().GetScheduleRelationship().String() != "CANCELED" {
		t.Errorf("expected CANCELED schedule relationship, got %v", fe.GetTripUpdate().GetTrip().GetScheduleRelationship())
	}
}

func TestBuildJSONTripEntityMatchesProtoShape(t *testing.T) {
	entry, tt := testEntry(t)
	e := buildJSONTripEntity(entry, tt)

	if e.TripId != "t1" || e.RouteId != "r1" || e.StartDate != "20240601" {
		t.Errorf("got %+v", e)
	}
	if len(e.StopTimes) != 2 || e.StopTimes[1].ArrivalSeconds != 100 {
		t.Errorf("got stop times %+v", e.StopTimes)
	}
}
