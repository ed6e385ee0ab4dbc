package timetable

import (
	logger "log"
	"sync"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/transitcast/realtime-timetable/business/data/snapshot"
	"github.com/transitcast/realtime-timetable/foundation/httpclient"
)

// runFeedPoller conditionally GETs feedURL on a fixed interval, applying
// every TripUpdate entity in a changed FeedMessage to source. A 304 (no
// ETag/Last-Modified change) costs nothing beyond the request itself,
// since httpclient.FetchIfChanged never downloads the body in that case.
// Ends on shutdownSignal.
func runFeedPoller(log *logger.Logger,
	wg *sync.WaitGroup,
	feedURL string,
	interval time.Duration,
	feedId string,
	source *snapshot.SnapshotSource,
	shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	var previous httpclient.RemoteFileInfo
	sleepChan := make(chan bool)

	for {
		go func() {
			time.Sleep(interval)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("ending feed poller on shutdown signal")
			return
		case <-sleepChan:
		}

		result, changed, err := httpclient.FetchIfChanged(feedURL, previous)
		if err != nil {
			log.Printf("error polling feed %s at %s: %s", feedId, feedURL, err)
			continue
		}
		if !changed {
			continue
		}
		previous = result.Body

		var feed gtfsproto.FeedMessage
		if err := proto.Unmarshal(result.Data, &feed); err != nil {
			log.Printf("error parsing polled feed %s: %s", feedId, err)
			continue
		}
		applyFeedEntities(source, feed.GetEntity(), feed.GetHeader(), feedId)
	}
}
