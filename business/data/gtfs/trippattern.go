package gtfs

import "sync/atomic"

// TripPattern interns a StopPattern against the Route it belongs to and
// owns the scheduled Timetable every Timetable overlay for this pattern is
// built from. Added/modified trips can grow its service-code bitset; the
// bitset is replaced by a clone rather than mutated in place (readers who
// already loaded the old one keep seeing it).
type TripPattern struct {
	Id          int64
	Route       *Route
	Pattern     StopPattern
	Scheduled   *Timetable
	serviceCodes atomic.Pointer[ServiceCodeSet]
}

// NewTripPattern builds a TripPattern with the given service codes. The
// scheduled Timetable may be nil for a dynamically-created pattern that
// has no base schedule (an ADDED trip's pattern).
func NewTripPattern(route *Route, pattern StopPattern, scheduled *Timetable, codes ServiceCodeSet) *TripPattern {
	tp := &TripPattern{
		Route:     route,
		Pattern:   pattern,
		Scheduled: scheduled,
	}
	tp.serviceCodes.Store(&codes)
	return tp
}

// ServiceCodes returns the pattern's current service-code bitset.
func (p *TripPattern) ServiceCodes() ServiceCodeSet {
	return *p.serviceCodes.Load()
}

// EnsureServiceCode grows the pattern's bitset by code if it isn't already
// a member, via copy-on-write atomic swap. Callers must hold the writer
// lock; the atomic swap makes this safe to race against a reader who
// loaded the old bitset before the swap.
func (p *TripPattern) EnsureServiceCode(code int) {
	current := p.serviceCodes.Load()
	if current.Has(code) {
		return
	}
	updated := current.WithCode(code)
	p.serviceCodes.Store(&updated)
}
