package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/api/controllers"
	"github.com/angelmondragon/vendcare-backend/api/routes"
	"github.com/angelmondragon/vendcare-backend/internal/checkout"
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
	"github.com/angelmondragon/vendcare-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/vendcare-backend/pkg/redis"
)

const webhookDedupeTTL = 72 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)
	pollerMetrics := metrics.NewPollerMetrics(registry)

	router, err := buildRouter(cfg, logg, dbClient, redisClient, registry, checkoutMetrics, pollerMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire api", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"addr":     addr,
		"instance": id,
		"gateway":  cfg.Gateway.Enabled(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func buildRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	checkoutMetrics *metrics.CheckoutMetrics,
	pollerMetrics *metrics.PollerMetrics,
) (http.Handler, error) {
	conn := dbClient.DB()

	inventoryStore := inventory.NewStore(conn)
	machineService, err := machines.NewService(machines.NewRepository(conn), inventoryStore, cfg.DeviceKey)
	if err != nil {
		return nil, err
	}

	cartStore := checkout.NewRedisCartStore(redisClient, cfg.Checkout.CartTTL)
	cartService, err := checkout.NewCartService(cartStore, machineService, inventoryStore)
	if err != nil {
		return nil, err
	}

	ordersRepo := orders.NewRepository(conn)
	ordersService, err := orders.NewService(ordersRepo)
	if err != nil {
		return nil, err
	}

	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	gatewayClient := gateway.NewClient(cfg.Gateway, gateway.WithMetrics(checkoutMetrics))

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		DB:        dbClient,
		Sessions:  checkout.NewRepository(conn),
		Orders:    ordersRepo,
		Inventory: inventoryStore,
		Gateway:   gatewayClient,
		Outbox:    emitter,
		Guard:     redisClient,
		Carts:     cartStore,
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

	webhookGuard, err := idempotency.NewManager(redisClient, webhookDedupeTTL)
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(routes.Params{
		Config: cfg,
		Logger: logg,
		Pingers: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Gatherer:      registry,
		Idempotency:   redisClient,
		Attempts:      redisClient,
		WebhookGuard:  webhookGuard,
		Machines:      machineService,
		Inventory:     inventoryStore,
		Carts:         cartService,
		Checkout:      checkoutService,
		Orders:        ordersService,
		OrderReader:   ordersRepo,
		Dispensing:    dispensingService,
		PollerMetrics: pollerMetrics,
	}), nil
}
