package timetable

import (
	"context"
	"encoding/json"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/gorilla/mux"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	"github.com/transitcast/realtime-timetable/business/data/gtfs"
	"github.com/transitcast/realtime-timetable/business/data/snapshot"
)

// defaultHttpHandler answers the root route with a bare liveness signal.
type defaultHttpHandler struct{}

func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

// snapshotHandler republishes the SnapshotSource's currently published
// Snapshot as a GTFS-realtime TripUpdate feed: protocol buffer by default,
// prototext with ?text=true, or a JSON projection with ?json=true.
type snapshotHandler struct {
	log    *logger.Logger
	source *snapshot.SnapshotSource
}

func (h *snapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	asText := strings.ToLower(r.FormValue("text")) == "true"
	asJson := strings.ToLower(r.FormValue("json")) == "true"
	if asJson {
		h.serveJSON(w)
	} else {
		h.serveGTFSRT(asText, w)
	}
}

func (h *snapshotHandler) serveGTFSRT(asText bool, w http.ResponseWriter) {
	feedMessage := h.buildFeedMessage()
	if asText {
		h.writeProtocolBufferAsText(feedMessage, w)
	} else {
		h.writeProtocolBuffer(feedMessage, w)
	}
}

func (h *snapshotHandler) writeProtocolBuffer(feedMessage *gtfsproto.FeedMessage, w http.ResponseWriter) {
	bytes, err := proto.Marshal(feedMessage)
	if err != nil {
		h.log.Printf("failed to marshal FeedMessage to bytes, error: %s", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	if _, err := w.Write(bytes); err != nil {
		h.log.Printf("error writing response: %s", err)
	}
}

func (h *snapshotHandler) writeProtocolBufferAsText(feedMessage *gtfsproto.FeedMessage, w http.ResponseWriter) {
	text := prototext.MarshalOptions{Multiline: true}.Format(feedMessage)
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte(text)); err != nil {
		h.log.Printf("error writing response: %s", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
	}
}

// jsonSnapshotResponse is the JSON projection of the current snapshot.
type jsonSnapshotResponse struct {
	Timestamp int64            `json:"timestamp"`
	Entities  []jsonTripEntity `json:"trip_updates"`
}

type jsonTripEntity struct {
	TripId    string           `json:"trip_id"`
	RouteId   string           `json:"route_id"`
	StartDate string           `json:"start_date"`
	Cancelled bool             `json:"cancelled"`
	StopTimes []jsonStopUpdate `json:"stop_time_updates"`
}

type jsonStopUpdate struct {
	StopId           string `json:"stop_id"`
	StopSequence     int    `json:"stop_sequence"`
	ArrivalSeconds   int    `json:"arrival_seconds"`
	ArrivalDelay     int    `json:"arrival_delay"`
	DepartureSeconds int    `json:"departure_seconds"`
	DepartureDelay   int    `json:"departure_delay"`
}

func (h *snapshotHandler) serveJSON(w http.ResponseWriter) {
	entries := h.source.GetTimetableSnapshot().Entries()
	response := jsonSnapshotResponse{Timestamp: time.Now().Unix()}
	for _, entry := range entries {
		for _, tt := range entry.Timetable.TripTimes() {
			response.Entities = append(response.Entities, buildJSONTripEntity(entry, tt))
		}
	}
	data, err := json.Marshal(response)
	if err != nil {
		h.log.Printf("error marshaling snapshot to json: %v", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		h.log.Printf("error writing json response: %s", err)
	}
}

func buildJSONTripEntity(entry snapshot.OverlayEntry, tt *gtfs.TripTimes) jsonTripEntity {
	routeId := ""
	if entry.Pattern.Route != nil {
		routeId = entry.Pattern.Route.RouteId
	}
	e := jsonTripEntity{
		TripId:    tt.Trip.TripId,
		RouteId:   routeId,
		StartDate: entry.Date.Format("20060102"),
		Cancelled: tt.Cancelled,
	}
	for i, stop := range entry.Pattern.Pattern.Stops {
		if stop.Stop == nil || i >= len(tt.ArrivalSeconds) {
			continue
		}
		e.StopTimes = append(e.StopTimes, jsonStopUpdate{
			StopId:           stop.Stop.StopId,
			StopSequence:     i + 1,
			ArrivalSeconds:   tt.ArrivalSeconds[i],
			ArrivalDelay:     tt.ArrivalSeconds[i] - tt.ScheduledArrivalSeconds[i],
			DepartureSeconds: tt.DepartureSeconds[i],
			DepartureDelay:   tt.DepartureSeconds[i] - tt.ScheduledDepartureSeconds[i],
		})
	}
	return e
}

// buildFeedMessage walks every overlay the current snapshot holds and
// assembles a FULL_DATASET FeedMessage from it.
func (h *snapshotHandler) buildFeedMessage() *gtfsproto.FeedMessage {
	now := uint64(time.Now().Unix())
	gtfsRealtimeVersion := "2.0"
	incrementality := gtfsproto.FeedHeader_FULL_DATASET
	feedMessage := &gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: &gtfsRealtimeVersion,
			Incrementality:      &incrementality,
			Timestamp:           &now,
		},
	}

	for _, entry := range h.source.GetTimetableSnapshot().Entries() {
		for _, tt := range entry.Timetable.TripTimes() {
			feedMessage.Entity = append(feedMessage.Entity, buildTripUpdateEntity(entry, tt))
		}
	}
	return feedMessage
}

// buildTripUpdateEntity converts one overlay TripTimes into a
// gtfsproto.FeedEntity carrying a TripUpdate, expressing every stop's
// realtime offset as a delay from its scheduled value.
func buildTripUpdateEntity(entry snapshot.OverlayEntry, tt *gtfs.TripTimes) *gtfsproto.FeedEntity {
	tripId := tt.Trip.TripId
	routeId := ""
	if entry.Pattern.Route != nil {
		routeId = entry.Pattern.Route.RouteId
	}
	startDate := entry.Date.Format("20060102")
	relationship := gtfsproto.TripDescriptor_SCHEDULED
	if tt.Cancelled {
		relationship = gtfsproto.TripDescriptor_CANCELED
	}

	tripDescriptor := &gtfsproto.TripDescriptor{
		TripId:               &tripId,
		RouteId:              &routeId,
		StartDate:            &startDate,
		ScheduleRelationship: &relationship,
	}

	var stopTimeUpdates []*gtfsproto.TripUpdate_StopTimeUpdate
	for i, stop := range entry.Pattern.Pattern.Stops {
		if stop.Stop == nil || i >= len(tt.ArrivalSeconds) {
			continue
		}
		stopId := stop.Stop.StopId
		stopSequence := uint32(i + 1)
		arrivalDelay := int32(tt.ArrivalSeconds[i] - tt.ScheduledArrivalSeconds[i])
		departureDelay := int32(tt.DepartureSeconds[i] - tt.ScheduledDepartureSeconds[i])
		stopTimeUpdates = append(stopTimeUpdates, &gtfsproto.TripUpdate_StopTimeUpdate{
			StopSequence: &stopSequence,
			StopId:       &stopId,
			Arrival:      &gtfsproto.TripUpdate_StopTimeEvent{Delay: &arrivalDelay},
			Departure:    &gtfsproto.TripUpdate_StopTimeEvent{Delay: &departureDelay},
		})
	}

	tripUpdate := &gtfsproto.TripUpdate{
		Trip:           tripDescriptor,
		StopTimeUpdate: stopTimeUpdates,
	}

	id := tripId
	return &gtfsproto.FeedEntity{Id: &id, TripUpdate: tripUpdate}
}

// createServer builds the configured http.Server for the debug snapshot
// service.
func createServer(log *logger.Logger, source *snapshot.SnapshotSource, httpPort int) *http.Server {
	handler := &snapshotHandler{log: log, source: source}

	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{})
	r.Handle("/snapshot", handler)
	return &http.Server{
		Addr:         strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
}

// runWebService starts the debug snapshot service and terminates it on
// shutdownSignal.
func runWebService(log *logger.Logger, wg *sync.WaitGroup, source *snapshot.SnapshotSource, httpPort int, shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	srv := createServer(log, source, httpPort)
	log.Printf("starting debug snapshot server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended: %s", err)
		}
	}()

	select {
	case <-shutdownSignal:
		log.Printf("ending web service on shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("error shutting down web service, error: %s", err)
		}
	}
}
