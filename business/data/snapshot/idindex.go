package snapshot

import (
	"log"

	"github.com/transitcast/realtime-timetable/business/data/gtfs"
)

// idIndex holds lazily-built secondary indices over bare (agency-unqualified)
// identifiers for stops, routes and trips, per spec §4.6. Built on first
// request under the writer lock; never invalidated afterward, because the
// base graph is immutable once loaded.
type idIndex struct {
	built  bool
	stops  map[string]*gtfs.Stop
	routes map[string]*gtfs.Route
	trips  map[string]gtfs.GraphTrip
}

func newIdIndex() *idIndex {
	return &idIndex{}
}

// ensureBuilt builds the index from graph the first time it's called; a
// no-op on every call after. Duplicate bare ids are logged, with the last
// occurrence in the graph's enumeration order winning.
func (idx *idIndex) ensureBuilt(graph gtfs.Graph, logger *log.Logger) {
	if idx.built {
		return
	}

	stops := make(map[string]*gtfs.Stop)
	for _, s := range graph.AllStops() {
		if _, present := stops[s.StopId]; present && logger != nil {
			logger.Printf("WARNING : idIndex : duplicate bare stop id %q, keeping last occurrence", s.StopId)
		}
		stops[s.StopId] = s
	}

	routes := make(map[string]*gtfs.Route)
	for _, r := range graph.AllRoutes() {
		if _, present := routes[r.RouteId]; present && logger != nil {
			logger.Printf("WARNING : idIndex : duplicate bare route id %q, keeping last occurrence", r.RouteId)
		}
		routes[r.RouteId] = r
	}

	trips := make(map[string]gtfs.GraphTrip)
	for _, t := range graph.AllTrips() {
		if _, present := trips[t.Trip.TripId]; present && logger != nil {
			logger.Printf("WARNING : idIndex : duplicate bare trip id %q, keeping last occurrence", t.Trip.TripId)
		}
		trips[t.Trip.TripId] = t
	}

	idx.stops = stops
	idx.routes = routes
	idx.trips = trips
	idx.built = true
}

func (idx *idIndex) stop(stopId string) (*gtfs.Stop, bool) {
	s, ok := idx.stops[stopId]
	return s, ok
}

func (idx *idIndex) route(routeId string) (*gtfs.Route, bool) {
	r, ok := idx.routes[routeId]
	return r, ok
}

func (idx *idIndex) trip(tripId string) (gtfs.GraphTrip, bool) {
	t, ok := idx.trips[tripId]
	return t, ok
}
