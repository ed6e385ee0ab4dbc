package graphstore

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transitcast/realtime-timetable/business/data/gtfs"
)

// Graph is a Postgres-backed gtfs.Graph: it loads every stop, route, and
// trip (paired with the TripPattern it runs on) belonging to one DataSet
// into memory once at LoadGraph time, then serves AllStops/AllRoutes/
// AllTrips from that snapshot and delegates calendar lookups to a
// CalendarService. The snapshot engine never asks it for anything beyond
// the gtfs.Graph interface; the database connection stays open because
// ServiceIDsOnDate queries it on every call.
type Graph struct {
	db       *sqlx.DB
	dataSet  *gtfs.DataSet
	calendar *CalendarService
	loc      *time.Location

	stops  []*gtfs.Stop
	routes []*gtfs.Route
	trips  []gtfs.GraphTrip

	dedupMu sync.Mutex
	dedup   map[string]*gtfs.TripTimes
}

// LoadGraph builds a Graph over dataSet's rows in db, interpreting
// service-day arithmetic in loc. It loads the full static graph into
// memory up front; afterward only ServiceIDsOnDate reads from the
// database again, through the CalendarService.
func LoadGraph(db *sqlx.DB, dataSet *gtfs.DataSet, loc *time.Location) (*Graph, error) {
	g := &Graph{
		db:       db,
		dataSet:  dataSet,
		calendar: NewCalendarService(db, dataSet),
		loc:      loc,
		dedup:    make(map[string]*gtfs.TripTimes),
	}

	var stopRows []*gtfs.Stop
	if err := db.Select(&stopRows, db.Rebind("select * from stop where data_set_id = ?"), dataSet.Id); err != nil {
		return nil, fmt.Errorf("loading stops: %w", err)
	}
	g.stops = stopRows

	var routeRows []*gtfs.Route
	if err := db.Select(&routeRows, db.Rebind("select * from route where data_set_id = ?"), dataSet.Id); err != nil {
		return nil, fmt.Errorf("loading routes: %w", err)
	}
	g.routes = routeRows

	stopsById := make(map[string]*gtfs.Stop, len(g.stops))
	for _, s := range g.stops {
		stopsById[s.StopId] = s
	}
	routesById := make(map[string]*gtfs.Route, len(g.routes))
	for _, r := range g.routes {
		routesById[r.RouteId] = r
	}

	var tripRows []*gtfs.Trip
	if err := db.Select(&tripRows, db.Rebind("select * from trip where data_set_id = ?"), dataSet.Id); err != nil {
		return nil, fmt.Errorf("loading trips: %w", err)
	}

	var stopTimeRows []*gtfs.StopTimeRow
	if err := db.Select(&stopTimeRows, db.Rebind("select * from stop_time where data_set_id = ? order by trip_id, stop_sequence"),
		dataSet.Id); err != nil {
		return nil, fmt.Errorf("loading stop times: %w", err)
	}
	stopTimesByTrip := make(map[string][]*gtfs.StopTimeRow, len(tripRows))
	for _, st := range stopTimeRows {
		stopTimesByTrip[st.TripId] = append(stopTimesByTrip[st.TripId], st)
	}

	patterns := make(map[string]*gtfs.TripPattern)
	var nextPatternId int64

	for _, trip := range tripRows {
		rows := stopTimesByTrip[trip.TripId]
		if len(rows) < 2 {
			return nil, fmt.Errorf("trip %s has fewer than 2 stop_time rows", trip.TripId)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].StopSequence < rows[j].StopSequence })

		stopPattern := gtfs.StopPattern{Stops: make([]gtfs.StopPatternStop, len(rows))}
		arrival := make([]int, len(rows))
		departure := make([]int, len(rows))
		for i, row := range rows {
			stop, ok := stopsById[row.StopId]
			if !ok {
				return nil, fmt.Errorf("trip %s references unknown stop %s", trip.TripId, row.StopId)
			}
			stopPattern.Stops[i] = gtfs.StopPatternStop{
				Stop:    stop,
				Pickup:  gtfs.PickupDropoffPolicyFromGTFS(row.PickupType),
				Dropoff: gtfs.PickupDropoffPolicyFromGTFS(row.DropOffType),
			}
			arrival[i] = row.ArrivalTime
			departure[i] = row.DepartureTime
		}

		route, ok := routesById[trip.RouteId]
		if !ok {
			return nil, fmt.Errorf("trip %s references unknown route %s", trip.TripId, trip.RouteId)
		}

		serviceCode, err := g.calendar.ServiceCode(trip.ServiceId)
		if err != nil {
			return nil, fmt.Errorf("trip %s: %w", trip.TripId, err)
		}

		patternKey := trip.RouteId + "|" + stopPattern.Key()
		pattern, ok := patterns[patternKey]
		if !ok {
			nextPatternId++
			pattern = gtfs.NewTripPattern(route, stopPattern, nil, gtfs.NewServiceCodeSet(serviceCode))
			pattern.Id = nextPatternId
			patterns[patternKey] = pattern
		} else {
			pattern.EnsureServiceCode(serviceCode)
		}

		tripTimes, err := g.Deduplicate(trip, serviceCode, arrival, departure)
		if err != nil {
			return nil, fmt.Errorf("trip %s: %w", trip.TripId, err)
		}

		if pattern.Scheduled == nil {
			pattern.Scheduled = gtfs.NewTimetable(pattern, time.Time{}, tripTimes)
		} else {
			pattern.Scheduled = pattern.Scheduled.WithTripTimes(tripTimes)
		}

		g.trips = append(g.trips, gtfs.GraphTrip{Trip: trip, Pattern: pattern})
	}

	return g, nil
}

// AllStops implements gtfs.Graph.
func (g *Graph) AllStops() []*gtfs.Stop { return g.stops }

// AllRoutes implements gtfs.Graph.
func (g *Graph) AllRoutes() []*gtfs.Route { return g.routes }

// AllTrips implements gtfs.Graph.
func (g *Graph) AllTrips() []gtfs.GraphTrip { return g.trips }

// ServiceIDsOnDate implements gtfs.Graph, delegating to the CalendarService.
func (g *Graph) ServiceIDsOnDate(date time.Time) ([]string, error) {
	return g.calendar.ServiceIDsOnDate(date)
}

// ServiceCode implements gtfs.Graph, delegating to the CalendarService.
func (g *Graph) ServiceCode(serviceId string) (int, error) {
	return g.calendar.ServiceCode(serviceId)
}

// SystemTimeZone implements gtfs.Graph.
func (g *Graph) SystemTimeZone() *time.Location { return g.loc }

// CalendarService exposes the Graph's CalendarService, so a caller can
// register a holiday blackout before trips start getting scheduled against
// it (BufferMutator reads service codes through Graph, never the
// CalendarService directly, but configuring the blackout set needs the
// concrete type).
func (g *Graph) CalendarService() *CalendarService { return g.calendar }

// Deduplicate implements gtfs.Graph: it builds a TripTimes for trip from
// resolved arrival/departure arrays, reusing an existing TripTimes when
// another trip on the same service code produced byte-identical arrays
// rather than allocating a fresh pair of arrays per trip. GTFS feeds
// routinely have thousands of trips sharing an identical stop pattern and
// timing (the same run repeated across the service day under different
// trip ids), so this measurably shrinks the resident graph.
func (g *Graph) Deduplicate(trip *gtfs.Trip, serviceCode int, arrival, departure []int) (*gtfs.TripTimes, error) {
	key := dedupKey(serviceCode, arrival, departure)

	g.dedupMu.Lock()
	existing, ok := g.dedup[key]
	g.dedupMu.Unlock()
	if ok {
		shared := *existing
		shared.Trip = trip
		shared.StampRealtime()
		return &shared, nil
	}

	tt, err := gtfs.NewScheduledTripTimes(trip, serviceCode, arrival, departure)
	if err != nil {
		return nil, err
	}

	g.dedupMu.Lock()
	g.dedup[key] = tt
	g.dedupMu.Unlock()
	return tt, nil
}

func dedupKey(serviceCode int, arrival, departure []int) string {
	var b []byte
	b = append(b, byte(serviceCode), byte(serviceCode>>8), '|')
	for _, v := range arrival {
		b = append(b, byte(v), byte(v>>8), byte(v>>16))
	}
	b = append(b, '|')
	for _, v := range departure {
		b = append(b, byte(v), byte(v>>8), byte(v>>16))
	}
	return string(b)
}

// LoadLatestGraph is the convenience entry point app/timetable-svc uses at
// startup and on every static-graph refresh: find the currently active
// DataSet, then build a Graph over it.
func LoadLatestGraph(logger *log.Logger, db *sqlx.DB, loc *time.Location) (*Graph, error) {
	dataSet, err := gtfs.GetLatestDataSet(db)
	if err != nil {
		return nil, fmt.Errorf("finding latest data set: %w", err)
	}
	if logger != nil {
		logger.Printf("loading graph from %s", dataSet)
	}
	return LoadGraph(db, dataSet, loc)
}
