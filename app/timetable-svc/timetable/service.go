// Package timetable wires the CORE's SnapshotSource into a running
// process: an ingestion transport (NATS subscription and/or HTTP feed
// poller), a periodic purge, and a debug HTTP service republishing the
// current snapshot as a GTFS-realtime feed.
package timetable

import (
	logger "log"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/transitcast/realtime-timetable/business/data/snapshot"
)

// Config holds the runtime parameters StartServices needs, independent of
// how main assembled them from command-line/environment configuration.
type Config struct {
	NATSSubject      string
	FeedURL          string
	FeedPollInterval time.Duration
	FeedID           string
	PurgeInterval    time.Duration
	PurgeRetainDays  int
	HTTPPort         int
}

// StartServices brings up the purge loop, the NATS trip-update listener
// (when natsConn is non-nil), the HTTP feed poller (when cfg.FeedURL is
// set) and the debug web service, and exits the whole process on
// shutdownSignal.
func StartServices(log *logger.Logger, cfg Config, source *snapshot.SnapshotSource, natsConn *nats.Conn, shutdownSignal chan os.Signal) {
	wg := sync.WaitGroup{}

	purgeShutdown := make(chan bool, 1)
	webShutdown := make(chan bool, 1)
	go runPurgeLoop(log, &wg, source, cfg.PurgeInterval, cfg.PurgeRetainDays, purgeShutdown)
	go runWebService(log, &wg, source, cfg.HTTPPort, webShutdown)

	var natsShutdown chan bool
	if natsConn != nil {
		natsShutdown = make(chan bool, 1)
		go runNATSListener(log, &wg, natsConn, cfg.NATSSubject, cfg.FeedID, source, natsShutdown)
	}

	var pollShutdown chan bool
	if cfg.FeedURL != "" {
		pollShutdown = make(chan bool, 1)
		go runFeedPoller(log, &wg, cfg.FeedURL, cfg.FeedPollInterval, cfg.FeedID, source, pollShutdown)
	}

	select {
	case <-shutdownSignal:
		log.Printf("exiting on shutdown signal, shutting down subroutines")
		purgeShutdown <- true
		webShutdown <- true
		if natsShutdown != nil {
			natsShutdown <- true
		}
		if pollShutdown != nil {
			pollShutdown <- true
		}
		wg.Wait()
		log.Printf("subroutines shut down, exiting timetable service")
	}
}

// runPurgeLoop runs PurgePolicy against source on a fixed interval. The
// same PurgePolicy is reused across every tick, since it carries its own
// last-cutoff bookkeeping.
func runPurgeLoop(log *logger.Logger, wg *sync.WaitGroup, source *snapshot.SnapshotSource, interval time.Duration, retainDays int, shutdownSignal chan bool) {
	wg.Add(1)
	defer wg.Done()

	policy := snapshot.NewPurgePolicy(retainDays)
	sleepChan := make(chan bool)

	for {
		go func() {
			time.Sleep(interval)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("ending purge loop on shutdown signal")
			return
		case <-sleepChan:
		}

		now := time.Now()
		source.Purge(&policy, now)
	}
}
