package gtfs

import "time"

// dlsTransitionSeconds returns the offset, in seconds, between the UTC
// offset in effect at midnight of the given day and the offset in effect
// five hours later. GTFS stop times are wall-clock, not elapsed-seconds,
// so a time near a daylight-saving transition needs this correction in
// both directions: building a wall-clock time from an offset, and
// recovering an offset from a wall-clock (or absolute) time.
func dlsTransitionSeconds(midnight time.Time) int {
	before := time.Date(midnight.Year(), midnight.Month(), midnight.Day(), 0, 0, 0, 0, midnight.Location())
	after := time.Date(midnight.Year(), midnight.Month(), midnight.Day(), 5, 0, 0, 0, midnight.Location())
	_, beforeOffset := before.Zone()
	_, afterOffset := after.Zone()
	return afterOffset - beforeOffset
}

// ServiceSecondsToTime produces a wall-clock time.Time from a service date's
// midnight and an offset in service seconds, correcting for a daylight
// saving transition the same way the offset was computed from.
func ServiceSecondsToTime(midnight time.Time, serviceSeconds int) time.Time {
	offset := dlsTransitionSeconds(midnight)
	return midnight.Add(time.Duration(serviceSeconds-offset) * time.Second)
}

// TimeToServiceSeconds is the inverse of ServiceSecondsToTime: given an
// absolute instant and the midnight of the service date it belongs to,
// recovers the wall-clock service-seconds offset.
func TimeToServiceSeconds(midnight time.Time, at time.Time) int {
	offset := dlsTransitionSeconds(midnight)
	elapsed := int(at.Unix() - midnight.Unix())
	return elapsed + offset
}
