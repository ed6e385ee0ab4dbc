package snapshot

import (
	"fmt"
	"time"

	"github.com/transitcast/realtime-timetable/business/data/gtfs"
)

// fakeGraph is a minimal in-memory gtfs.Graph for exercising the snapshot
// package without a database, modeled on the small fixed fixtures the
// teacher's own reader tests build by hand.
type fakeGraph struct {
	stops        []*gtfs.Stop
	routes       []*gtfs.Route
	trips        []gtfs.GraphTrip
	serviceCodes map[string]int
	activeOn     map[string][]string
	loc          *time.Location
}

func newFakeGraph() *fakeGraph {
	loc, _ := time.LoadLocation("America/Los_Angeles")
	return &fakeGraph{
		serviceCodes: make(map[string]int),
		activeOn:     make(map[string][]string),
		loc:          loc,
	}
}

func (g *fakeGraph) AllStops() []*gtfs.Stop   { return g.stops }
func (g *fakeGraph) AllRoutes() []*gtfs.Route { return g.routes }
func (g *fakeGraph) AllTrips() []gtfs.GraphTrip {
	return g.trips
}

func (g *fakeGraph) ServiceIDsOnDate(date time.Time) ([]string, error) {
	ids, ok := g.activeOn[dateKey(date)]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), ids...), nil
}

func (g *fakeGraph) ServiceCode(serviceId string) (int, error) {
	code, ok := g.serviceCodes[serviceId]
	if !ok {
		return 0, fmt.Errorf("unknown service id %q", serviceId)
	}
	return code, nil
}

func (g *fakeGraph) Deduplicate(trip *gtfs.Trip, serviceCode int, arrival, departure []int) (*gtfs.TripTimes, error) {
	return gtfs.NewScheduledTripTimes(trip, serviceCode, arrival, departure)
}

func (g *fakeGraph) SystemTimeZone() *time.Location { return g.loc }

// addScheduledTrip registers a base trip + pattern + scheduled timetable on
// serviceDate, wiring everything fakeGraph.AllTrips/AllStops/AllRoutes will
// enumerate.
func (g *fakeGraph) addScheduledTrip(tripId, routeId, serviceId string, serviceCode int, stopIds []string, arrival, departure []int, serviceDate time.Time) (*gtfs.TripPattern, error) {
	route := &gtfs.Route{RouteId: routeId}
	g.routes = append(g.routes, route)

	stops := make([]gtfs.StopPatternStop, len(stopIds))
	for i, id := range stopIds {
		stop := &gtfs.Stop{StopId: id}
		g.stops = append(g.stops, stop)
		pickup, dropoff := gtfs.PickupDropoffRegular, gtfs.PickupDropoffRegular
		if i == 0 {
			dropoff = gtfs.PickupDropoffNone
		}
		if i == len(stopIds)-1 {
			pickup = gtfs.PickupDropoffNone
		}
		stops[i] = gtfs.StopPatternStop{Stop: stop, Pickup: pickup, Dropoff: dropoff}
	}
	stopPattern := gtfs.StopPattern{Stops: stops}

	trip := &gtfs.Trip{TripId: tripId, RouteId: routeId, ServiceId: serviceId}
	tripTimes, err := gtfs.NewScheduledTripTimes(trip, serviceCode, arrival, departure)
	if err != nil {
		return nil, err
	}

	pattern := gtfs.NewTripPattern(route, stopPattern, nil, gtfs.NewServiceCodeSet(serviceCode))
	pattern.Scheduled = gtfs.NewTimetable(pattern, serviceDate, tripTimes)

	g.trips = append(g.trips, gtfs.GraphTrip{Trip: trip, Pattern: pattern})
	g.serviceCodes[serviceId] = serviceCode
	key := dateKey(serviceDate)
	g.activeOn[key] = append(g.activeOn[key], serviceId)

	return pattern, nil
}
