package gtfs

import "strings"

// StopPatternStop is one position in a StopPattern: the stop itself (nil if
// this position is a SKIPPED hole, permitted only on dynamically-built
// patterns) and the pickup/dropoff policy at that position.
type StopPatternStop struct {
	Stop    *Stop
	Pickup  PickupDropoffPolicy
	Dropoff PickupDropoffPolicy
}

// StopPattern is the ordered sequence of stops a trip traverses, together
// with per-stop pickup/dropoff policy. Equality is structural; it is the
// TripPatternCache's interning key.
type StopPattern struct {
	Stops []StopPatternStop
}

// Key returns a canonical string encoding of the pattern suitable for use
// as a map key; StopPattern itself contains a slice and so isn't
// comparable with ==.
func (p StopPattern) Key() string {
	var b strings.Builder
	for _, s := range p.Stops {
		if s.Stop == nil {
			b.WriteByte('-')
		} else {
			b.WriteString(s.Stop.StopId)
		}
		b.WriteByte(':')
		b.WriteByte(byte('0' + s.Pickup))
		b.WriteByte(':')
		b.WriteByte(byte('0' + s.Dropoff))
		b.WriteByte('|')
	}
	return b.String()
}

// Len is the number of stops in the pattern.
func (p StopPattern) Len() int {
	return len(p.Stops)
}
