package gtfs

import "time"

// GraphTrip pairs a scheduled Trip with the TripPattern it runs on, the
// shape Graph.AllTrips enumerates in.
type GraphTrip struct {
	Trip    *Trip
	Pattern *TripPattern
}

// Graph is the static-graph collaborator the snapshot engine treats as
// given: base entities, the calendar service, service-code mapping, the
// deduplicator that builds TripTimes arrays, and the system time zone. The
// snapshot engine holds non-owning references into a Graph and never
// mutates it; it builds its own bare-id lookup structures over the
// enumeration Graph provides (see IdIndex) rather than asking the graph
// for ad-hoc lookups, since a graph spanning multiple feeds may not key
// its own storage by bare id at all.
type Graph interface {
	// AllStops enumerates every stop the graph loaded.
	AllStops() []*Stop
	// AllRoutes enumerates every route the graph loaded.
	AllRoutes() []*Route
	// AllTrips enumerates every scheduled trip the graph loaded, paired
	// with the TripPattern it runs on.
	AllTrips() []GraphTrip

	// ServiceIDsOnDate returns every service id active on date, per
	// calendar.txt/calendar_dates.txt.
	ServiceIDsOnDate(date time.Time) ([]string, error)
	// ServiceCode maps a service id to the small integer code TripTimes
	// and ServiceCodeSet store in place of the string.
	ServiceCode(serviceId string) (int, error)

	// Deduplicate builds a TripTimes for trip from resolved arrival and
	// departure arrays, reusing an existing array when one is
	// structurally identical rather than allocating a fresh one per trip.
	Deduplicate(trip *Trip, serviceCode int, arrival, departure []int) (*TripTimes, error)

	// SystemTimeZone is the location used to compute service-date
	// midnight when a wire message carries no explicit time zone.
	SystemTimeZone() *time.Location
}

// PartialTripDescriptor is the subset of a raw TripUpdate's trip
// descriptor a FuzzyTripMatcher can use to complete a missing or stale
// trip id.
type PartialTripDescriptor struct {
	TripId    string
	RouteId   string
	StartDate string
	StartTime string
}

// FuzzyTripMatcher repairs a TripUpdate whose trip descriptor doesn't
// resolve directly against the graph, by matching route/time information
// against scheduled trips. Applied before validation; optional — a nil
// FuzzyTripMatcher means unresolved descriptors are rejected outright.
type FuzzyTripMatcher interface {
	Match(feedId string, partial PartialTripDescriptor) (tripId string, ok bool)
}
