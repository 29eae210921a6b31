package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/vendcare-backend/pkg/config"
	"github.com/angelmondragon/vendcare-backend/pkg/db"
	"github.com/angelmondragon/vendcare-backend/pkg/eventbus"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
	"github.com/angelmondragon/vendcare-backend/pkg/metrics"
	"github.com/angelmondragon/vendcare-backend/pkg/migrate"
	"github.com/angelmondragon/vendcare-backend/pkg/outbox"
	"github.com/angelmondragon/vendcare-backend/pkg/outbox/registry"
)

func main() {
	drain := flag.Bool("drain", false, "publish everything pending, then exit")
	replay := flag.Int("replay-dlq", 0, "requeue up to N replayable dead letters before publishing")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	bus, err := eventbus.New(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap event bus", err)
		os.Exit(1)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logg.Error(context.Background(), "error closing event bus", err)
		}
	}()

	repo := outbox.NewRepository(dbClient.DB())
	dlqRepo := outbox.NewDLQRepository(dbClient.DB())
	eventRegistry, err := registry.NewEventRegistry(cfg.EventTopics())
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Bus:           bus,
		Repository:    repo,
		Registry:      eventRegistry,
		DLQRepository: dlqRepo,
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": "outbox-publisher",
		"eventBus":    cfg.EventBus.Normalized(),
	})
	if *replay > 0 {
		replayDeadLetters(ctx, logg, dlqRepo, *replay)
	}

	if *drain {
		batches, err := service.Drain(ctx)
		if err != nil {
			logg.Error(ctx, "outbox drain failed", err)
			os.Exit(1)
		}
		logg.Info(logg.WithField(ctx, "batches", batches), "outbox drained")
		return
	}

	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func replayDeadLetters(ctx context.Context, logg *logger.Logger, dlq *outbox.DLQRepository, limit int) {
	entries, err := dlq.ListReplayable(ctx, limit)
	if err != nil {
		logg.Error(ctx, "failed to list dead letters", err)
		return
	}
	requeued := 0
	for _, entry := range entries {
		entryCtx := logg.WithFields(ctx, map[string]any{
			"outbox_id":    entry.EventID.String(),
			"event_type":   entry.EventType,
			"error_reason": entry.ErrorReason,
		})
		if err := dlq.Replay(ctx, entry.ID); err != nil {
			logg.Error(entryCtx, "dead letter replay failed", err)
			continue
		}
		requeued++
	}
	logg.Info(logg.WithField(ctx, "requeued", requeued), "dead letters requeued")
}
