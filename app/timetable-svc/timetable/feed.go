package timetable

import (
	logger "log"
	"os"
	"sync"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/proto"

	"github.com/transitcast/realtime-timetable/business/data/snapshot"
)

// runNATSListener subscribes to subject for protocol-buffer encoded
// gtfsproto.FeedMessage payloads and applies every TripUpdate entity found
// in each message to source. Ends the subscription and returns on
// shutdownSignal.
func runNATSListener(log *logger.Logger,
	wg *sync.WaitGroup,
	natsConn *nats.Conn,
	subject string,
	feedId string,
	source *snapshot.SnapshotSource,
	shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	ch := make(chan *nats.Msg, 64)
	log.Printf("subscribing to trip updates on subject %q on nats: %v", subject, natsConn.Servers())
	sub, err := natsConn.ChanSubscribe(subject, ch)
	if err != nil {
		log.Printf("unable to establish subscription to nats server: %v", err)
		os.Exit(1)
	}

	for {
		select {
		case msg := <-ch:
			applyFeedMessagePayload(log, msg.Data, source, feedId)
		case <-shutdownSignal:
			log.Printf("ending nats trip update listener on shutdown signal")
			if err := sub.Unsubscribe(); err != nil {
				log.Printf("error unsubscribing from nats: %s", err)
			}
			return
		}
	}
}

// applyFeedMessagePayload unmarshals a wire-format gtfsproto.FeedMessage
// and applies every TripUpdate entity it carries to source.
func applyFeedMessagePayload(log *logger.Logger, data []byte, source *snapshot.SnapshotSource, feedId string) {
	var feed gtfsproto.FeedMessage
	if err := proto.Unmarshal(data, &feed); err != nil {
		log.Printf("error parsing FeedMessage from feed %s: %s", feedId, err)
		return
	}
	applyFeedEntities(source, feed.GetEntity(), feed.GetHeader(), feedId)
}

// applyFeedEntities extracts the TripUpdate out of every entity and runs
// them through source as a single batch, honoring the header's
// incrementality the same way a real transport would.
func applyFeedEntities(source *snapshot.SnapshotSource, entities []*gtfsproto.FeedEntity, header *gtfsproto.FeedHeader, feedId string) {
	fullDataset := header.GetIncrementality() == gtfsproto.FeedHeader_FULL_DATASET
	updates := make([]*gtfsproto.TripUpdate, 0, len(entities))
	for _, e := range entities {
		if tu := e.GetTripUpdate(); tu != nil {
			updates = append(updates, tu)
		}
	}
	source.ApplyTripUpdates(updates, fullDataset, feedId)
}
