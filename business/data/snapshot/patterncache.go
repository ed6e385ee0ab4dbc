package snapshot

import "github.com/transitcast/realtime-timetable/business/data/gtfs"

// tripPatternCache interns a StopPattern -> TripPattern mapping for
// dynamically-created patterns (spec §4.5). Accessed only under the writer
// lock, so no internal synchronization is needed, but the cache itself
// outlives individual batches — once interned, a pattern is reused by
// every later trip that happens to share its stop sequence.
type tripPatternCache struct {
	byKey  map[string]*gtfs.TripPattern
	nextId int64
}

func newTripPatternCache() *tripPatternCache {
	return &tripPatternCache{byKey: make(map[string]*gtfs.TripPattern)}
}

// getOrCreate interns pattern, returning the existing TripPattern on a
// structural-equality hit or constructing and registering a new one
// (against route, with codes as its initial service-code bitset) on miss.
func (c *tripPatternCache) getOrCreate(pattern gtfs.StopPattern, route *gtfs.Route, codes gtfs.ServiceCodeSet) *gtfs.TripPattern {
	key := pattern.Key()
	if existing, ok := c.byKey[key]; ok {
		return existing
	}
	c.nextId++
	tp := gtfs.NewTripPattern(route, pattern, nil, codes)
	tp.Id = c.nextId
	c.byKey[key] = tp
	return tp
}

// forget removes pattern from the cache. Nothing in the package calls it: a
// purge drops overlays and route registrations from the buffer, and the
// interned pattern stays in the cache.
func (c *tripPatternCache) forget(pattern *gtfs.TripPattern) {
	delete(c.byKey, pattern.Pattern.Key())
}
