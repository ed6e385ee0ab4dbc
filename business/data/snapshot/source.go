package snapshot

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/transitcast/realtime-timetable/business/data/gtfs"
	"github.com/transitcast/realtime-timetable/business/data/gtfsrt"
)

const (
	defaultMaxSnapshotFrequency = time.Second
	defaultLogFrequency         = 100
)

// SnapshotSource is the CORE's single entry point (spec §4.1): a writer
// thread calls ApplyTripUpdates under a fair mutex to mutate the working
// buffer, while any number of reader threads call GetTimetableSnapshot
// without blocking, via an atomically-swapped published pointer.
type SnapshotSource struct {
	graph   gtfs.Graph
	matcher gtfs.FuzzyTripMatcher
	logger  *log.Logger

	maxSnapshotFrequency time.Duration
	logFrequency         int

	writerMu          sync.Mutex
	buf               *Snapshot
	idx               *idIndex
	cache             *tripPatternCache
	lastCommit        time.Time
	appliedBlockCount int

	published atomic.Pointer[Snapshot]
}

// NewSnapshotSource builds a SnapshotSource over graph. matcher may be nil,
// meaning a TripUpdate with an unresolvable trip descriptor is rejected
// outright rather than repaired.
func NewSnapshotSource(graph gtfs.Graph, matcher gtfs.FuzzyTripMatcher, logger *log.Logger) *SnapshotSource {
	s := &SnapshotSource{
		graph:                graph,
		matcher:              matcher,
		logger:               logger,
		maxSnapshotFrequency: defaultMaxSnapshotFrequency,
		logFrequency:         defaultLogFrequency,
		buf:                  newSnapshot(),
		idx:                  newIdIndex(),
		cache:                newTripPatternCache(),
	}
	s.published.Store(s.buf.commit())
	return s
}

// SetMaxSnapshotFrequency overrides the default once-a-second publish
// throttle; mostly useful to tests that want deterministic publishing.
func (s *SnapshotSource) SetMaxSnapshotFrequency(d time.Duration) {
	s.maxSnapshotFrequency = d
}

// GetTimetableSnapshot returns the most recently published Snapshot. It
// try-locks the writer mutex to opportunistically publish a pending, throttle-
// delayed commit; on contention it returns the last published Snapshot
// unchanged rather than waiting for the writer.
func (s *SnapshotSource) GetTimetableSnapshot() *Snapshot {
	if s.writerMu.TryLock() {
		s.maybePublish()
		s.writerMu.Unlock()
	}
	return s.published.Load()
}

// ApplyTripUpdates runs one batch of TripUpdate messages through
// classify -> validate -> mutate, then republishes if the throttle allows
// it. fullDataset resets the working buffer first, matching a feed whose
// header announces FULL_DATASET incrementality rather than DIFFERENTIAL.
func (s *SnapshotSource) ApplyTripUpdates(updates []*gtfsproto.TripUpdate, fullDataset bool, feedId string) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	s.idx.ensureBuilt(s.graph, s.logger)
	if fullDataset {
		s.buf.clearAll()
	}

	mutator := &bufferMutator{buf: s.buf, idx: s.idx, cache: s.cache, graph: s.graph}

	for _, update := range updates {
		if err := s.applyOne(mutator, update, feedId); err != nil {
			s.logSkip(feedId, update, err)
		}
		s.appliedBlockCount++
		if s.logger != nil && s.logFrequency > 0 && s.appliedBlockCount%s.logFrequency == 0 {
			s.logger.Printf("INFO : snapshot : feed %s : applied %d trip updates so far", feedId, s.appliedBlockCount)
		}
	}

	s.maybePublish()
}

// applyOne resolves the trip descriptor, classifies the update, and
// dispatches to the BufferMutator operation the classification names.
func (s *SnapshotSource) applyOne(m *bufferMutator, update *gtfsproto.TripUpdate, feedId string) error {
	trip := update.GetTrip()
	if trip == nil {
		return fmt.Errorf("trip_update has no trip descriptor")
	}

	tripId := trip.GetTripId()
	if tripId == "" && s.matcher != nil {
		if matched, ok := s.matcher.Match(feedId, gtfs.PartialTripDescriptor{
			TripId:    tripId,
			RouteId:   trip.GetRouteId(),
			StartDate: trip.GetStartDate(),
			StartTime: trip.GetStartTime(),
		}); ok {
			tripId = matched
		}
	}
	if tripId == "" {
		return fmt.Errorf("missing trip_id and no fuzzy match")
	}

	startDate := trip.GetStartDate()
	if startDate == "" {
		return fmt.Errorf("trip %s: missing start_date", tripId)
	}
	date, err := gtfsrt.ParseStartDate(startDate, s.graph.SystemTimeZone())
	if err != nil {
		return fmt.Errorf("trip %s: %w", tripId, err)
	}

	switch classify(update) {
	case classificationScheduled:
		return m.handleScheduledTrip(tripId, date, update.GetStopTimeUpdate())

	case classificationAdded:
		if err := checkAddedPreconditions(s.idx, tripId, startDate); err != nil {
			return err
		}
		resolved, err := validateFreshTrip(s.idx, update.GetStopTimeUpdate())
		if err != nil {
			return fmt.Errorf("added trip %s: %w", tripId, err)
		}
		return m.addTrip(tripId, trip.GetRouteId(), date, resolved)

	case classificationModified:
		serviceIds, err := s.graph.ServiceIDsOnDate(date)
		if err != nil {
			return fmt.Errorf("modified trip %s: %w", tripId, err)
		}
		base, err := checkModifiedPreconditions(s.idx, tripId, startDate, serviceIds)
		if err != nil {
			return err
		}
		gtfsrt.ResolveStopReferences(patternStopIds(base.Pattern), update.GetStopTimeUpdate())
		resolved, err := validateFreshTrip(s.idx, update.GetStopTimeUpdate())
		if err != nil {
			return fmt.Errorf("modified trip %s: %w", tripId, err)
		}
		routeId := trip.GetRouteId()
		if routeId == "" {
			routeId = base.Trip.RouteId
		}
		return m.modify(tripId, routeId, date, resolved)

	case classificationCanceled:
		return m.canceled(tripId, date)

	case classificationUnscheduled:
		return fmt.Errorf("trip %s: unscheduled trips are not supported", tripId)

	default:
		return fmt.Errorf("trip %s: unrecognized classification", tripId)
	}
}

// maybePublish commits and republishes the working buffer if it's dirty and
// the throttle interval has elapsed since the last publish.
func (s *SnapshotSource) maybePublish() {
	if !s.buf.Dirty() {
		return
	}
	if !s.lastCommit.IsZero() && time.Since(s.lastCommit) < s.maxSnapshotFrequency {
		return
	}
	s.published.Store(s.buf.commit())
	s.lastCommit = time.Now()
}

// ForceCommit republishes the working buffer regardless of the throttle.
// Used by Purge so a purge becomes visible to readers immediately.
func (s *SnapshotSource) ForceCommit() {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	if !s.buf.Dirty() {
		return
	}
	s.published.Store(s.buf.commit())
	s.lastCommit = time.Now()
}

// Purge runs policy against the working buffer under the writer lock,
// force-publishing if anything was removed. policy carries its own
// last-cutoff bookkeeping across calls, so callers should reuse the same
// *PurgePolicy on every invocation.
func (s *SnapshotSource) Purge(policy *PurgePolicy, now time.Time) {
	s.writerMu.Lock()
	removed := policy.apply(s.buf, now)
	s.writerMu.Unlock()
	if removed {
		s.ForceCommit()
	}
}

func (s *SnapshotSource) logSkip(feedId string, update *gtfsproto.TripUpdate, err error) {
	if s.logger == nil {
		return
	}
	tripId := ""
	if trip := update.GetTrip(); trip != nil {
		tripId = trip.GetTripId()
	}
	s.logger.Printf("WARNING : snapshot : feed %s : trip_update %q skipped : %v", feedId, tripId, err)
}

// patternStopIds extracts pattern's stop ids in pattern-position order, for
// resolving a MODIFIED TripUpdate's stop_time_updates against their base
// pattern. A SKIPPED hole (nil Stop) contributes an empty string, which
// never matches a real stop_id.
func patternStopIds(pattern *gtfs.TripPattern) []string {
	ids := make([]string, len(pattern.Pattern.Stops))
	for i, s := range pattern.Pattern.Stops {
		if s.Stop != nil {
			ids[i] = s.Stop.StopId
		}
	}
	return ids
}
