package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/vendcare-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/vendcare-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/vendcare-backend/api/controllers/webhooks"
	"github.com/angelmondragon/vendcare-backend/api/middleware"
	"github.com/angelmondragon/vendcare-backend/internal/machines"
	"github.com/angelmondragon/vendcare-backend/internal/orders"
	"github.com/angelmondragon/vendcare-backend/pkg/config"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
	"github.com/angelmondragon/vendcare-backend/pkg/metrics"
	"github.com/angelmondragon/vendcare-backend/pkg/outbox/idempotency"
	pkgredis "github.com/angelmondragon/vendcare-backend/pkg/redis"
)

type cartService interface {
	controllers.CartEditor
	controllers.SessionBuilder
}

type checkoutService interface {
	controllers.CheckoutRunner
	webhookcontrollers.PaymentNotifier
}

type dispensingService interface {
	controllers.Dispenser
	ordercontrollers.Completer
}

type webhookGuard interface {
	Begin(ctx context.Context, consumer, deliveryID string) (idempotency.Status, error)
	Complete(ctx context.Context, consumer, deliveryID string) error
	Release(ctx context.Context, consumer, deliveryID string) error
}

type attemptCounter interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Params carries everything the HTTP surface depends on. Nil stores disable the
// middleware that needs them.
type Params struct {
	Config        *config.Config
	Logger        *logger.Logger
	Pingers       map[string]controllers.Pinger
	Gatherer      prometheus.Gatherer
	Idempotency   pkgredis.IdempotencyStore
	Attempts      attemptCounter
	WebhookGuard  webhookGuard
	Machines      machines.Service
	Inventory     controllers.SlotUpdater
	Carts         cartService
	Checkout      checkoutService
	Orders        orders.Service
	OrderReader   ordercontrollers.OrderReader
	Dispensing    dispensingService
	PollerMetrics *metrics.PollerMetrics
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	dispensePolicy := middleware.NewRateLimitPolicy(
		"dispense",
		cfg.RateLimit.DispenseWindow,
		cfg.RateLimit.DispenseIPLimit,
		cfg.RateLimit.DispenseMachineLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Pingers, logg))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/payments", webhookcontrollers.PaymentsWebhook(p.Checkout, cfg.Gateway.WebhookSecret, p.WebhookGuard, logg))

		r.Route("/machines/{machineCode}", func(r chi.Router) {
			r.Get("/", controllers.MachineDetail(p.Machines, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(dispensePolicy, p.Attempts, logg))
				r.Use(middleware.MachineKey(p.Machines, logg))
				r.Post("/dispense", controllers.Dispense(p.Dispensing, logg))
				r.Post("/dispense/failure", controllers.DispenseFailure(p.Dispensing, logg))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(p.Idempotency, logg))

			r.Route("/cart/{machineCode}", func(r chi.Router) {
				r.Get("/", controllers.CartGet(p.Carts, logg))
				r.Put("/", controllers.CartUpdateItem(p.Carts, logg))
				r.Delete("/", controllers.CartDelete(p.Carts, logg))
				r.Post("/items", controllers.CartAddItem(p.Carts, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", controllers.CheckoutInitiate(p.Checkout, p.Carts, logg))
				r.Get("/{sessionId}", controllers.CheckoutStatus(p.Checkout, logg))
				r.Post("/{sessionId}/confirm", controllers.CheckoutConfirm(p.Checkout, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(p.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))
				r.Post("/{orderId}/complete", ordercontrollers.Complete(p.Dispensing, logg))
				r.Get("/{orderId}/stream", ordercontrollers.Stream(p.OrderReader, ordercontrollers.StreamConfig{
					Interval:       cfg.Poller.Interval,
					AllowedOrigins: cfg.Poller.AllowedOrigins,
					Metrics:        p.PollerMetrics,
				}, logg))
			})
		})

		r.Route("/operator", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.RoleOperator))
			r.Use(middleware.Idempotency(p.Idempotency, logg))
			r.Put("/machines/{machineId}/inventory/{productId}", controllers.OperatorRestock(p.Inventory, logg))
			r.Post("/machines/{machineId}/device-key", controllers.OperatorRotateDeviceKey(p.Machines, logg))
		})
	})

	return r
}
