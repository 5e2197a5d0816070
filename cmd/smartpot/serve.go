package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/smartpot-core/internal/api"
	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/auth"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/logging"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smartpot-core/internal/ingest"
	"github.com/nerrad567/smartpot-core/internal/metrics"
)

// tokenPurgeInterval is how often expired refresh tokens are deleted.
const tokenPurgeInterval = time.Hour

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

The server will:
- Open the SQLite database and apply pending migrations
- Connect to InfluxDB and the MQTT broker when enabled
- Serve the REST API until SIGINT or SIGTERM`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

// bootstrapLogging is used until the configured logger replaces it.
var bootstrapLogging = config.LoggingConfig{Level: "info", Format: "json"}

// runServe wires every component and blocks until ctx is cancelled or a
// shutdown signal arrives. Log records written before the configuration is
// loaded go to out.
func runServe(ctx context.Context, opts *globalOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.NewWithWriter(bootstrapLogging, version, out)
	log.Info("starting Smart Pot Core",
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(opts, log)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", opts.configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	m := metrics.New(version)
	if err := m.RegisterDB(db.DB); err != nil {
		return fmt.Errorf("registering database metrics: %w", err)
	}

	// The recorder outlives ctx so entries queued during shutdown still land.
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db), log)
	recorder.Start(recorderCtx)
	defer func() {
		stopRecorder()
		recorder.Wait()
	}()

	// The purge loop gets its own cancel so an early error return does not
	// wait on a ctx that only a signal would end.
	purgeCtx, cancelPurge := context.WithCancel(ctx)
	purgeDone := startTokenPurge(purgeCtx, db, m, log, tokenPurgeInterval)
	defer func() {
		cancelPurge()
		<-purgeDone
	}()

	influxClient, err := connectInfluxDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	var mirror ingest.Mirror
	if influxClient != nil {
		mirror = influxClient
	}

	deps := api.Deps{
		Config:   cfg.API,
		JWT:      cfg.Security.JWT,
		Logger:   log,
		DB:       db,
		Recorder: recorder,
		Metrics:  m,
		Version:  version,
	}
	if influxClient != nil {
		deps.Mirror = influxClient
		deps.InfluxDB = influxClient
	}

	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT, log)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		deps.MQTT = mqttClient

		svc := ingest.New(ingest.Deps{
			DB:       db,
			Bus:      mqttClient,
			Mirror:   mirror,
			Recorder: recorder,
			Metrics:  m,
			Logger:   log.With("component", "ingest"),
			QoS:      byte(cfg.MQTT.QoS),
		})
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("starting sensor ingest: %w", err)
		}
		defer func() {
			if stopErr := svc.Stop(); stopErr != nil {
				log.Warn("error stopping sensor ingest", "error", stopErr)
			}
		}()
	} else {
		log.Info("MQTT ingest disabled")
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

	// Deferred Close() calls run in reverse order: API server, ingest,
	// MQTT, InfluxDB, token purge, audit recorder, database.
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// connectInfluxDB returns nil without error when the mirror is disabled.
func connectInfluxDB(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// startTokenPurge deletes expired refresh tokens every interval until ctx
// is cancelled. The returned channel closes when the loop has exited.
func startTokenPurge(ctx context.Context, db *database.DB, m *metrics.Metrics, log *logging.Logger, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purgeExpiredTokens(ctx, db, m, log)
			}
		}
	}()
	return done
}

func purgeExpiredTokens(ctx context.Context, db *database.DB, m *metrics.Metrics, log *logging.Logger) int64 {
	var n int64
	err := db.WithTx(ctx, func(tx database.DBTX) error {
		var err error
		n, err = auth.NewTokenRepository(tx).DeleteExpired(ctx)
		return err
	})
	if err != nil {
		log.Error("purging expired refresh tokens failed", "error", err)
		return 0
	}
	if n > 0 {
		m.RefreshTokensPurged.Add(float64(n))
		log.Debug("purged expired refresh tokens", "count", n)
	}
	return n
}
