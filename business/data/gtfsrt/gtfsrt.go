// Package gtfsrt provides thin helpers around the GTFS-realtime wire model
// (github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs): parsing the
// start_date field and resolving a stop-time update's stop reference
// against a trip's base pattern when only one of stop_id/stop_sequence is
// present. It never reinterprets classification or validation semantics —
// those stay in business/data/snapshot.
package gtfsrt

import (
	"fmt"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// StartDateLayout is the GTFS-realtime trip.start_date wire format.
const StartDateLayout = "20060102"

// ParseStartDate parses a TripDescriptor.start_date value in loc. An empty
// string fails to parse like any other malformed value; callers that treat
// a missing start_date differently check for it before calling.
func ParseStartDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(StartDateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing start_date %q: %w", value, err)
	}
	return t, nil
}

// ResolveStopReferences fills in a missing stop_id or stop_sequence on each
// update by cross-referencing the trip's base pattern stop ids, ordered by
// pattern position starting at 1 (matching GTFS's stop_sequence
// convention). Updates that already carry both fields are left alone
// except that a zero stop_sequence is filled in from stop_id when
// resolvable, since a genuine stop_sequence of zero is indistinguishable
// from "absent" in the wire format.
func ResolveStopReferences(baseStopIds []string, updates []*gtfsproto.TripUpdate_StopTimeUpdate) {
	seqByStopId := make(map[string]uint32, len(baseStopIds))
	stopIdBySeq := make(map[uint32]string, len(baseStopIds))
	for i, stopId := range baseStopIds {
		seq := uint32(i + 1)
		seqByStopId[stopId] = seq
		stopIdBySeq[seq] = stopId
	}

	for _, update := range updates {
		stopId := update.GetStopId()
		seq := update.GetStopSequence()

		if stopId != "" {
			if seq == 0 {
				if resolved, ok := seqByStopId[stopId]; ok {
					update.StopSequence = &resolved
				}
			}
			continue
		}
		if resolved, ok := stopIdBySeq[seq]; ok {
			update.StopId = &resolved
		}
	}
}
