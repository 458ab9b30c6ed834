// Command flowops runs the workflow orchestration service: the webhook
// receiver, the backlog worker endpoint, and the run management API.
//
// Configuration comes from FLOWOPS_* environment variables; see
// flowops.LoadConfig. Without FLOWOPS_REDIS_URL the service runs on the
// in-memory store, which is fine for local development and useless for
// anything else.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	flowops "github.com/Aparnap2/internal-flow-ops"
	"github.com/Aparnap2/internal-flow-ops/api"
	"github.com/Aparnap2/internal-flow-ops/backlog"
	"github.com/Aparnap2/internal-flow-ops/connector"
	"github.com/Aparnap2/internal-flow-ops/engine"
	"github.com/Aparnap2/internal-flow-ops/flows"
	"github.com/Aparnap2/internal-flow-ops/idem"
	"github.com/Aparnap2/internal-flow-ops/ingest"
	"github.com/Aparnap2/internal-flow-ops/kv"
	kvmemory "github.com/Aparnap2/internal-flow-ops/kv/memory"
	kvredis "github.com/Aparnap2/internal-flow-ops/kv/redis"
	"github.com/Aparnap2/internal-flow-ops/workflow"
)

func main() {
	cfg := flowops.LoadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store unavailable", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	clients := flows.Clients{
		CRM:      connector.WithRetry(&connector.SimulatedCRM{Logger: logger}, nil, 3, logger),
		Tables:   &connector.SimulatedTables{Logger: logger},
		Notes:    &connector.SimulatedNotes{Logger: logger},
		Calendar: &connector.SimulatedCalendar{Logger: logger},
		Model:    &connector.SimulatedModel{},
		Logger:   logger,
	}
	registry, err := flows.BuildRegistry(clients)
	if err != nil {
		logger.Error("registry misconfigured", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("workflows registered", slog.Any("triggers", registry.Triggers()))

	runs := workflow.NewKVStore(store,
		workflow.WithRunTTL(cfg.RunTTL),
		workflow.WithCheckpointTTL(cfg.CheckpointTTL),
	)
	eng := engine.New(registry, runs, engine.WithLogger(logger))

	// Pick up runs a previous process left mid-flight.
	if n, err := eng.RecoverAll(ctx); err != nil {
		logger.Warn("crash recovery incomplete", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("recovered interrupted runs", slog.Int("count", n))
	}

	processor := ingest.New(
		idem.New(store, idem.WithTTL(cfg.IdempotencyTTL), idem.WithLogger(logger)),
		registry,
		eng,
		clients.CRM,
		backlog.New(store, cfg.QueueName),
		ingest.WithLogger(logger),
		ingest.WithDrainConcurrency(cfg.DrainConcurrency),
	)

	handler := api.New(eng, runs, processor,
		api.WithLogger(logger),
		api.WithRateLimit(store, cfg.WebhookRateLimit, cfg.WebhookRateWindow),
	).Handler()

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
	go func() {
		logger.Info("listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
}

// openStore connects to Redis when configured, otherwise falls back to the
// in-memory store.
func openStore(ctx context.Context, cfg flowops.Config, logger *slog.Logger) (kv.Store, error) {
	if cfg.RedisURL == "" {
		logger.Warn("no redis url configured, using in-memory store")
		return kvmemory.New(), nil
	}

	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	store := kvredis.New(goredis.NewClient(opts), kvredis.WithLogger(logger))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		return nil, err
	}
	logger.Info("connected to redis")
	return store, nil
}
