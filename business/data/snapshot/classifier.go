package snapshot

import gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

// classification is the tagged sum spec §4.2/§9 describes: a TripUpdate
// flows through the classifier once at batch-entry and is never
// reclassified afterward.
type classification int

const (
	classificationScheduled classification = iota
	classificationAdded
	classificationUnscheduled
	classificationCanceled
	classificationModified
)

func (c classification) String() string {
	switch c {
	case classificationScheduled:
		return "SCHEDULED"
	case classificationAdded:
		return "ADDED"
	case classificationUnscheduled:
		return "UNSCHEDULED"
	case classificationCanceled:
		return "CANCELED"
	case classificationModified:
		return "MODIFIED"
	default:
		return "UNKNOWN"
	}
}

// classify maps a raw TripUpdate to its classification, applying the
// SCHEDULED→MODIFIED promotion rule: a SCHEDULED message that skips a stop
// isn't a simple retime, it defines a new stop pattern and must flow
// through the add/modify pipeline instead.
//
// gtfsproto.TripDescriptor_ScheduleRelationship has no MODIFIED constant
// (only SCHEDULED, ADDED, UNSCHEDULED, CANCELED, REPLACEMENT, DUPLICATED),
// so classificationModified is only ever reached through the promotion
// rule below, never from an explicit wire value.
func classify(update *gtfsproto.TripUpdate) classification {
	result := classificationScheduled

	if trip := update.GetTrip(); trip != nil {
		switch trip.GetScheduleRelationship() {
		case gtfsproto.TripDescriptor_SCHEDULED:
			result = classificationScheduled
		case gtfsproto.TripDescriptor_ADDED:
			result = classificationAdded
		case gtfsproto.TripDescriptor_UNSCHEDULED:
			result = classificationUnscheduled
		case gtfsproto.TripDescriptor_CANCELED:
			result = classificationCanceled
		}
	}

	if result == classificationScheduled && anyStopSkippedOrAdded(update) {
		result = classificationModified
	}
	return result
}

// anyStopSkippedOrAdded reports whether any stop_time_update carries
// SKIPPED. A stop-level ADDED schedule_relationship would promote here too
// once the upstream wire format defines one (spec §9 open question); there
// is nothing to add until it does.
func anyStopSkippedOrAdded(update *gtfsproto.TripUpdate) bool {
	for _, stu := range update.GetStopTimeUpdate() {
		if stu.GetScheduleRelationship() == gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED {
			return true
		}
	}
	return false
}
