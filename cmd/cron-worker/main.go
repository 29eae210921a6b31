package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/internal/checkout"
	"github.com/angelmondragon/vendcare-backend/internal/cron"
	"github.com/angelmondragon/vendcare-backend/internal/dispensing"
	"github.com/angelmondragon/vendcare-backend/internal/gateway"
	"github.com/angelmondragon/vendcare-backend/internal/inventory"
	"github.com/angelmondragon/vendcare-backend/internal/machines"
	"github.com/angelmondragon/vendcare-backend/internal/orders"
	"github.com/angelmondragon/vendcare-backend/pkg/config"
	"github.com/angelmondragon/vendcare-backend/pkg/db"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
	"github.com/angelmondragon/vendcare-backend/pkg/metrics"
	"github.com/angelmondragon/vendcare-backend/pkg/migrate"
	"github.com/angelmondragon/vendcare-backend/pkg/outbox"
	"github.com/angelmondragon/vendcare-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run the due jobs a single time and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	jobs, err := buildJobs(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(jobs),
	})
	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron run failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) ([]cron.Job, error) {
	conn := dbClient.DB()
	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	inventoryStore := inventory.NewStore(conn)
	machineService, err := machines.NewService(machines.NewRepository(conn), inventoryStore, cfg.DeviceKey)
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		DB:        dbClient,
		Sessions:  checkout.NewRepository(conn),
		Orders:    orders.NewRepository(conn),
		Inventory: inventoryStore,
		Gateway:   gateway.NewClient(cfg.Gateway, gateway.WithMetrics(checkoutMetrics)),
		Outbox:    emitter,
		Guard:     redisClient,
		Metrics:   checkoutMetrics,
		Logger:    logg,
		Config:    cfg.Checkout,
	})
	if err != nil {
		return nil, err
	}

	dispensingService, err := dispensing.NewService(dispensing.ServiceParams{
		DB:       dbClient,
		Orders:   func(tx *gorm.DB) dispensing.OrderStore { return orders.NewRepository(tx) },
		Machines: machineService,
		Outbox:   emitter,
		Metrics:  checkoutMetrics,
		Logger:   logg,
	})
	if err != nil {
		return nil, err
	}

	holdJob, err := cron.NewHoldReleaseJob(cron.HoldReleaseJobParams{
		Logger:    logg,
		DB:        dbClient,
		Holds:     inventoryStore,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("hold release job: %w", err)
	}
	checkoutJob, err := cron.NewCheckoutExpiryJob(cron.CheckoutExpiryJobParams{
		Logger:    logg,
		Checkout:  checkoutService,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout expiry job: %w", err)
	}
	orderJob, err := cron.NewOrderTTLJob(cron.OrderTTLJobParams{
		Logger:     logg,
		Dispensing: dispensingService,
		BatchSize:  cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("order ttl job: %w", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetainFor,
		BatchSize:  cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	// Holds go first so the checkout sweep sees them released.
	return []cron.Job{holdJob, checkoutJob, orderJob, retentionJob}, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
