package snapshot

import (
	"time"

	"github.com/transitcast/realtime-timetable/business/data/gtfs"
)

// dateKeyLayout is the layout dateKey formats and Entries parses a service
// date key with.
const dateKeyLayout = "20060102"

// dateKey normalizes a service date to the string used as a map key
// throughout Snapshot, since time.Time values carrying different
// monotonic readings or locations aren't safe to compare with ==.
func dateKey(date time.Time) string {
	return date.Format(dateKeyLayout)
}

type overlayKey struct {
	pattern *gtfs.TripPattern
	date    string
}

type lastAddedKey struct {
	tripId string
	date   string
}

// Snapshot is the overlay set atop the base timetable, per spec §3. The
// same shape serves two roles: the mutable working buffer SnapshotSource
// writes through (committed == false), and the immutable published
// snapshot route-planning readers consume (committed == true, and every
// mutating method panics rather than corrupt a snapshot readers may be
// traversing).
type Snapshot struct {
	overlays      map[overlayKey]*gtfs.Timetable
	lastAdded     map[lastAddedKey]*gtfs.TripPattern
	patternRoutes map[*gtfs.TripPattern]*gtfs.Route
	dirty         bool
	committed     bool
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		overlays:      make(map[overlayKey]*gtfs.Timetable),
		lastAdded:     make(map[lastAddedKey]*gtfs.TripPattern),
		patternRoutes: make(map[*gtfs.TripPattern]*gtfs.Route),
	}
}

func (s *Snapshot) mustBeMutable() {
	if s.committed {
		panic("snapshot: mutation attempted on a published (committed) snapshot")
	}
}

// Overlay returns the overlay Timetable for (pattern, date), if any.
func (s *Snapshot) Overlay(pattern *gtfs.TripPattern, date time.Time) (*gtfs.Timetable, bool) {
	tt, ok := s.overlays[overlayKey{pattern, dateKey(date)}]
	return tt, ok
}

// LastAddedPattern returns the pattern of the most recent added/modified
// trip with tripId on date, if any.
func (s *Snapshot) LastAddedPattern(tripId string, date time.Time) (*gtfs.TripPattern, bool) {
	p, ok := s.lastAdded[lastAddedKey{tripId, dateKey(date)}]
	return p, ok
}

// PatternRoute returns the Route a dynamically-created pattern was
// registered under.
func (s *Snapshot) PatternRoute(pattern *gtfs.TripPattern) (*gtfs.Route, bool) {
	r, ok := s.patternRoutes[pattern]
	return r, ok
}

// Dirty reports whether the buffer has unpublished mutations.
func (s *Snapshot) Dirty() bool {
	return s.dirty
}

// OverlayEntry pairs one (pattern, date) overlay with its Timetable, for a
// caller that needs to walk every overlay a snapshot holds rather than
// look one up by pattern and date — a debug endpoint republishing the
// whole snapshot as a feed, say.
type OverlayEntry struct {
	Pattern   *gtfs.TripPattern
	Date      time.Time
	Timetable *gtfs.Timetable
}

// Entries enumerates every overlay currently held, in no particular order.
// A key whose date string fails to parse back (never happens for a key
// this package produced itself) is skipped rather than returned with a
// zero date.
func (s *Snapshot) Entries() []OverlayEntry {
	entries := make([]OverlayEntry, 0, len(s.overlays))
	for key, tt := range s.overlays {
		date, err := time.Parse(dateKeyLayout, key.date)
		if err != nil {
			continue
		}
		entries = append(entries, OverlayEntry{Pattern: key.pattern, Date: date, Timetable: tt})
	}
	return entries
}

// update installs newTimes into the (pattern, date) overlay: if no overlay
// exists yet, one is seeded from pattern's scheduled Timetable (or an
// empty Timetable, for a pattern with no scheduled baseline) before
// newTimes replaces or is appended to it. Marks the buffer dirty.
func (s *Snapshot) update(pattern *gtfs.TripPattern, date time.Time, newTimes *gtfs.TripTimes) {
	s.mustBeMutable()
	key := overlayKey{pattern, dateKey(date)}
	existing, ok := s.overlays[key]
	if !ok {
		if pattern.Scheduled != nil {
			existing = pattern.Scheduled
		} else {
			existing = gtfs.NewTimetable(pattern, date)
		}
	}
	s.overlays[key] = existing.WithTripTimes(newTimes)
	s.dirty = true
}

// setLastAddedPattern records pattern as the most recent added/modified
// pattern for (tripId, date).
func (s *Snapshot) setLastAddedPattern(tripId string, date time.Time, pattern *gtfs.TripPattern) {
	s.mustBeMutable()
	s.lastAdded[lastAddedKey{tripId, dateKey(date)}] = pattern
	s.dirty = true
}

// registerPatternRoute records the Route a dynamically-created pattern
// belongs to, so PurgePolicy can find and drop it once unreferenced.
func (s *Snapshot) registerPatternRoute(pattern *gtfs.TripPattern, route *gtfs.Route) {
	s.mustBeMutable()
	s.patternRoutes[pattern] = route
}

// clearAll discards every overlay, last-added entry and dynamically
// registered pattern — the full-dataset reset applyTripUpdates performs
// when fullDataset is true.
func (s *Snapshot) clearAll() {
	s.mustBeMutable()
	s.overlays = make(map[overlayKey]*gtfs.Timetable)
	s.lastAdded = make(map[lastAddedKey]*gtfs.TripPattern)
	s.patternRoutes = make(map[*gtfs.TripPattern]*gtfs.Route)
	s.dirty = true
}

// removeOverlaysOlderThan drops every (pattern, date) overlay whose date
// is strictly before cutoff, and any dynamically-created pattern left with
// no remaining overlay or lastAdded reference. Returns whether anything
// was removed.
func (s *Snapshot) removeOverlaysOlderThan(cutoff time.Time) bool {
	s.mustBeMutable()
	removedAny := false
	cutoffKey := dateKey(cutoff)

	for key, tt := range s.overlays {
		if key.date < cutoffKey {
			delete(s.overlays, key)
			removedAny = true
			continue
		}
		_ = tt
	}
	for key := range s.lastAdded {
		if key.date < cutoffKey {
			delete(s.lastAdded, key)
			removedAny = true
		}
	}

	if removedAny {
		s.pruneUnreferencedPatterns()
	}
	return removedAny
}

// pruneUnreferencedPatterns drops patternRoutes entries for any
// dynamically-created pattern no overlay or lastAdded entry points to
// anymore.
func (s *Snapshot) pruneUnreferencedPatterns() {
	referenced := make(map[*gtfs.TripPattern]struct{}, len(s.patternRoutes))
	for key := range s.overlays {
		referenced[key.pattern] = struct{}{}
	}
	for _, p := range s.lastAdded {
		referenced[p] = struct{}{}
	}
	for pattern := range s.patternRoutes {
		if _, ok := referenced[pattern]; !ok {
			delete(s.patternRoutes, pattern)
		}
	}
}

// commit freezes the buffer into a new, immutable, published Snapshot:
// the overlay/lastAdded/patternRoutes maps are cloned (cheap — they hold
// pointers) so the buffer can keep mutating without corrupting what was
// just published; the Timetable and TripPattern values underneath are
// shared, since they're themselves copy-on-write.
func (s *Snapshot) commit() *Snapshot {
	s.mustBeMutable()
	clone := &Snapshot{
		overlays:      make(map[overlayKey]*gtfs.Timetable, len(s.overlays)),
		lastAdded:     make(map[lastAddedKey]*gtfs.TripPattern, len(s.lastAdded)),
		patternRoutes: make(map[*gtfs.TripPattern]*gtfs.Route, len(s.patternRoutes)),
		committed:     true,
	}
	for k, v := range s.overlays {
		clone.overlays[k] = v
	}
	for k, v := range s.lastAdded {
		clone.lastAdded[k] = v
	}
	for k, v := range s.patternRoutes {
		clone.patternRoutes[k] = v
	}
	s.dirty = false
	return clone
}
