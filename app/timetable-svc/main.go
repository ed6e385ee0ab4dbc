package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"

	"github.com/transitcast/realtime-timetable/app/timetable-svc/timetable"
	"github.com/transitcast/realtime-timetable/business/data/graphstore"
	"github.com/transitcast/realtime-timetable/business/data/snapshot"
	"github.com/transitcast/realtime-timetable/foundation/database"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "TIMETABLE : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %+v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args
		DB   struct {
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string `conf:"default:0.0.0.0"`
			Name       string `conf:"default:postgres"`
			DisableTLS bool   `conf:"default:true"`
		}
		NATS struct {
			URL     string `conf:"default:"`
			Subject string `conf:"default:trip-updates"`
		}
		Feed struct {
			URL          string        `conf:"default:"`
			Id           string        `conf:"default:default"`
			PollInterval time.Duration `conf:"default:30s"`
		}
		Purge struct {
			IntervalSeconds int `conf:"default:60"`
			RetainDays      int `conf:"default:2"`
		}
		Web struct {
			HTTPPort int `conf:"default:3000"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Maintains a realtime trip-update snapshot over a static GTFS graph and republishes it as a GTFS-realtime feed"
	const prefix = "TIMETABLE"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	// =========================================================================
	// Start Database

	log.Println("main: Initializing database support")

	db, err := database.Open(database.Config{
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Host:       cfg.DB.Host,
		Name:       cfg.DB.Name,
		DisableTLS: cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		if err := db.Close(); err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()

	// =========================================================================
	// Load the static graph

	log.Println("main: loading static graph")
	graph, err := graphstore.LoadLatestGraph(log, db, time.UTC)
	if err != nil {
		return fmt.Errorf("loading static graph: %w", err)
	}

	source := snapshot.NewSnapshotSource(graph, nil, log)

	// =========================================================================
	// Start nats, if configured

	var natsConnection *nats.Conn
	if cfg.NATS.URL != "" {
		log.Printf("main: connecting to NATS at %s", cfg.NATS.URL)
		natsConnection, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("unable to establish connection to nats server: %w", err)
		}
		defer func() {
			log.Printf("main: closing connection to NATS")
			natsConnection.Close()
		}()
	}

	if cfg.NATS.URL == "" && cfg.Feed.URL == "" {
		return fmt.Errorf("no ingestion transport configured: set NATS.URL or Feed.URL")
	}

	// Make a channel to listen for an interrupt or terminate signal from the
	// OS. Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	log.Printf("starting timetable service\n")
	timetable.StartServices(log, timetable.Config{
		NATSSubject:      cfg.NATS.Subject,
		FeedURL:          cfg.Feed.URL,
		FeedPollInterval: cfg.Feed.PollInterval,
		FeedID:           cfg.Feed.Id,
		PurgeInterval:    time.Duration(cfg.Purge.IntervalSeconds) * time.Second,
		PurgeRetainDays:  cfg.Purge.RetainDays,
		HTTPPort:         cfg.Web.HTTPPort,
	}, source, natsConnection, shutdown)

	return nil
}
