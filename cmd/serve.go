// Package cmd provides CLI commands for the scribe service.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/minuteworks/scribe/config"
	"github.com/minuteworks/scribe/pkg/ai"
	"github.com/minuteworks/scribe/pkg/api"
	"github.com/minuteworks/scribe/pkg/db"
	"github.com/minuteworks/scribe/pkg/logging"
	"github.com/minuteworks/scribe/pkg/meeting"
	"github.com/minuteworks/scribe/pkg/pipeline"
	"github.com/minuteworks/scribe/pkg/pipeline/queues"
	"github.com/minuteworks/scribe/pkg/pipeline/storage"
	"github.com/minuteworks/scribe/pkg/pipeline/workers"
	"github.com/minuteworks/scribe/pkg/share"
	"github.com/minuteworks/scribe/pkg/status"
)

// Serve command flags.
var (
	serveInMemory  bool
	serveNoMigrate bool
)

// maintenanceInterval drives the idle-finalize and stale-job sweeps.
const maintenanceInterval = 30 * time.Second

// NewServeCommand creates the 'serve' command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline service",
		Long: `Run the scribe pipeline service.

Starts the HTTP API, the summary worker pool, the maintenance sweeps
(idle-meeting finalization and stale-job recovery), and the Prometheus
metrics endpoint. Storage is PostgreSQL; the job queue and status
fan-out run on Redis when enabled, in-process otherwise.

Examples:
  # Run against PostgreSQL per scribe.yaml / DB_* env
  scribe serve

  # Run fully in-process for local development (no Postgres, no Redis)
  scribe serve --in-memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&serveInMemory, "in-memory", false, "Use in-process storage and queue instead of Postgres/Redis")
	cmd.Flags().BoolVar(&serveNoMigrate, "no-migrate", false, "Skip applying pending migrations at startup")

	return cmd
}

// runServe wires the service together and blocks until shutdown.
func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("Starting scribe",
		logging.F("environment", cfg.Service.Environment),
		logging.F("listen_addr", cfg.Service.ListenAddr))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	// Storage.
	var (
		store meeting.Store
		pool  *pgxpool.Pool
	)
	if serveInMemory {
		store = storage.NewMemoryStore()
		logger.Warn("Running with in-memory storage; data is lost on exit")
	} else {
		pool, err = db.ConnectWithRetry(ctx, cfg.DB, 5, 2*time.Second)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()
		reg.MustRegister(db.NewPoolStatsCollector(pool, "scribe", cfg.Service.Name))

		if !serveNoMigrate {
			dir, err := cfg.MigrationsPath()
			if err != nil {
				return err
			}
			result, err := db.RunMigrations(ctx, pool, dir)
			if err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			if len(result.Applied) > 0 {
				logger.Info("Applied migrations", logging.F("count", len(result.Applied)))
			}
		}

		store = storage.NewRepository(pool, logger)
	}

	// Job queue and status fan-out.
	var (
		queue queues.Queue
		rdb   *redis.Client
	)
	if cfg.Redis.Enabled && !serveInMemory {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		rq := queues.NewRedisQueue(rdb, cfg.QueueConfig())
		go recoverStaleMessages(ctx, rq, logger)
		queue = rq
	} else {
		queue = queues.NewMemoryQueue(cfg.QueueConfig())
	}

	// Upstream AI provider.
	var provider ai.Provider
	if cfg.AI.UseMock {
		provider = ai.NewMockProvider()
		logger.Warn("Using mock AI provider")
	} else {
		provider = ai.NewOpenAIProvider(ai.OpenAIConfig{
			STTURL:    cfg.AI.STTURL,
			STTAPIKey: cfg.AI.STTAPIKey,
			STTModel:  cfg.AI.STTModel,
			LLMURL:    cfg.AI.LLMURL,
			LLMAPIKey: cfg.AI.LLMAPIKey,
			LLMModel:  cfg.AI.LLMModel,
			Timeout:   cfg.AI.Timeout,
		}, logger)
	}

	// Status fan-out: always publish locally, mirror to Redis when on.
	publisher := status.NewPublisher(logger)
	listener := func(snap meeting.StatusSnapshot) { publisher.Publish(snap) }
	if rdb != nil {
		broadcaster := status.NewBroadcaster(rdb, logger)
		go broadcaster.Listen(ctx, publisher)
		listener = func(snap meeting.StatusSnapshot) {
			publisher.Publish(snap)
			broadcaster.Publish(ctx, snap)
		}
	}

	engine := pipeline.NewEngine(store, queue, provider, cfg.Pipeline, logger,
		pipeline.WithMetrics(pipeline.NewMetrics(reg)),
		pipeline.WithStatusListener(listener))

	workerPool := workers.NewPool(cfg.Workers, queue, engine.HandleSummaryMessage, cfg.Pipeline.Retry, logger)
	workerPool.Start()
	defer workerPool.Stop()

	go engine.RunMaintenance(ctx, maintenanceInterval)

	// API server.
	apiServer := api.NewServer(engine, share.NewRegistry(store, logger, share.WithMetrics(reg)), publisher,
		healthCheck(pool, rdb), logger)
	httpServer := &http.Server{
		Addr:        cfg.Service.ListenAddr,
		Handler:     apiServer.Handler(),
		IdleTimeout: 120 * time.Second,
	}

	// Metrics endpoint on its own listener.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.Service.MetricsAddr, Handler: metricsMux}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("API listening", logging.F("addr", cfg.Service.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Info("Metrics listening", logging.F("addr", cfg.Service.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API shutdown failed", logging.Err(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics shutdown failed", logging.Err(err))
	}
	return nil
}

// recoverStaleMessages requeues messages whose visibility timeout
// elapsed without an ack.
func recoverStaleMessages(ctx context.Context, rq *queues.RedisQueue, logger logging.Logger) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rq.RecoverStaleMessages(); err != nil {
				logger.Warn("Stale message recovery failed", logging.Err(err))
			}
		}
	}
}

// newLogger builds the service logger from config.
func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:       logging.Level(cfg.Log.Level),
		ServiceName: cfg.Service.Name,
		Environment: cfg.Service.Environment,
		JSONFormat:  cfg.Log.JSON,
	})
}

// healthCheck pings the configured backends.
func healthCheck(pool *pgxpool.Pool, rdb *redis.Client) api.HealthChecker {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("database unreachable: %w", err)
			}
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis unreachable: %w", err)
			}
		}
		return nil
	}
}
