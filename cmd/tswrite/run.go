package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/tswrite/internal/api"
	"github.com/nerrad567/tswrite/internal/batching"
	"github.com/nerrad567/tswrite/internal/deadletter"
	"github.com/nerrad567/tswrite/internal/infrastructure/config"
	"github.com/nerrad567/tswrite/internal/infrastructure/database"
	"github.com/nerrad567/tswrite/internal/infrastructure/influxdb"
	"github.com/nerrad567/tswrite/internal/infrastructure/logging"
	"github.com/nerrad567/tswrite/internal/infrastructure/mqtt"
	"github.com/nerrad567/tswrite/internal/infrastructure/udp"
	"github.com/nerrad567/tswrite/internal/metrics"
	"github.com/nerrad567/tswrite/internal/transport"
	"github.com/nerrad567/tswrite/migrations"
)

// run is the actual application logic, separated from main for testability.
// It blocks until ctx is cancelled, then shuts down in reverse start order:
// API, batch processor (final flush and backlog attempt), dead-letter sinks,
// transports.
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting tswrite",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	health := map[string]api.HealthChecker{}

	// Transports
	var httpWriter transport.HTTPWriter
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		httpWriter = influxClient
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL)
	} else {
		log.Info("InfluxDB HTTP writes disabled")
	}

	var udpSender transport.UDPSender
	if cfg.UDP.Enabled {
		sender, udpErr := udp.New(cfg.UDP)
		if udpErr != nil {
			return fmt.Errorf("creating UDP sender: %w", udpErr)
		}
		defer func() {
			if closeErr := sender.Close(); closeErr != nil {
				log.Error("error closing UDP sockets", "error", closeErr)
			}
		}()
		udpSender = sender
		log.Info("UDP sender ready", "host", cfg.UDP.Host, "max_datagram_size", cfg.UDP.MaxDatagramSize)
	}

	// Dead-letter sinks
	var sinks []deadletter.Sink
	var store *deadletter.SQLiteStore
	if cfg.DeadLetter.Store {
		db, dbErr := openDatabase(ctx, cfg.Database)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		store = deadletter.NewSQLiteStore(db.DB)
		sinks = append(sinks, store)
		health["database"] = db
		log.Info("dead-letter store ready", "path", db.Path())
	}

	if cfg.DeadLetter.Publish {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.DeadLetter.TopicPrefix))
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		sinks = append(sinks, deadletter.NewMQTTPublisher(mqttClient, mqttClient.Topics()))
		health["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// Batch processor
	opts, err := batchOptions(cfg, log, sinks)
	if err != nil {
		return err
	}
	processor, err := batching.New(transport.NewRouter(httpWriter, udpSender), opts)
	if err != nil {
		return fmt.Errorf("starting batch processor: %w", err)
	}
	defer func() {
		log.Info("flushing batch processor")
		processor.FlushAndShutdown()
		s := processor.Stats()
		log.Info("batch processor stopped",
			"points_written", s.PointsWritten,
			"points_lost", s.PointsLost,
		)
	}()
	log.Info("batch processor started",
		"strategy", processor.Stats().Strategy,
		"actions", opts.Actions,
		"flush_interval", opts.FlushInterval,
		"buffer_limit", opts.BufferLimit,
	)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if _, regErr := metrics.Register(registry, processor); regErr != nil {
		return fmt.Errorf("registering metrics: %w", regErr)
	}

	// HTTP API
	deps := api.Deps{
		Config:                 cfg.API,
		Logger:                 log.With("component", "api"),
		Processor:              processor,
		DefaultDatabase:        cfg.Batch.Database,
		DefaultRetentionPolicy: cfg.Batch.RetentionPolicy,
		Gatherer:               registry,
		Health:                 health,
		Version:                version,
	}
	if store != nil {
		deps.DeadLetters = store
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal", "address", server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// batchOptions maps the batch config section onto processor options.
// With batching disabled every point is flushed on its own and never retried.
func batchOptions(cfg *config.Config, log *logging.Logger, sinks []deadletter.Sink) (batching.Options, error) {
	consistency, err := batching.ParseConsistency(cfg.Batch.Consistency)
	if err != nil {
		return batching.Options{}, fmt.Errorf("batch consistency: %w", err)
	}

	opts := batching.DefaultOptions()
	opts.Actions = cfg.Batch.Actions
	opts.FlushInterval = cfg.GetFlushInterval()
	opts.JitterInterval = cfg.GetJitterInterval()
	opts.BufferLimit = cfg.Batch.BufferLimit
	opts.Consistency = consistency
	opts.Retryable = transport.IsRetryable
	opts.Logger = log.With("component", "batching")
	opts.OnLost = deadletter.Handler(deadletter.Options{
		Logger:    log.With("component", "deadletter"),
		Timeout:   cfg.GetDeadLetterTimeout(),
		MaxLines:  cfg.DeadLetter.MaxLines,
		Retryable: transport.IsRetryable,
	}, sinks...)

	if !cfg.Batch.Enabled {
		opts.Actions = 1
		opts.JitterInterval = 0
		opts.BufferLimit = 0
	}

	return opts, nil
}

// openDatabase opens the SQLite file and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// migrate applies the migrations and prints what is in place.
func migrate(ctx context.Context, configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, m := range applied {
		fmt.Fprintf(out, "applied  %s at %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s %s\n", m.Version, m.Name)
	}
	return nil
}
