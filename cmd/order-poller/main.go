package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/vendcare-backend/internal/dispensing"
	"github.com/angelmondragon/vendcare-backend/internal/gateway"
	"github.com/angelmondragon/vendcare-backend/internal/poller"
	"github.com/angelmondragon/vendcare-backend/pkg/config"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("api", envOr("VENDCARE_API_URL", "http://localhost:8080"), "VendCare API base URL")
	token := flag.String("token", os.Getenv("VENDCARE_ACCESS_TOKEN"), "buyer access token")
	orderArg := flag.String("order", "", "order id to follow")
	interval := flag.Duration("interval", poller.DefaultInterval, "poll interval")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logg := logger.New(logger.Options{
		ServiceName: "order-poller",
		Level:       logger.ParseLevel(*logLevel),
		Format:      "console",
	})

	orderID, err := uuid.Parse(*orderArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "missing or invalid -order")
		os.Exit(2)
	}

	client := gateway.NewClient(config.GatewayConfig{BaseURL: *apiURL, Timeout: 10 * time.Second}, gateway.WithToken(*token))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ticker := &countdownPrinter{}
	defer ticker.stop()

	p, err := poller.New(poller.Params{
		Source:   poller.NewHTTPSource(client),
		OrderID:  orderID,
		Interval: *interval,
		Logger:   logg,
		OnUpdate: func(s poller.Snapshot) {
			fmt.Printf("order %s: %s\n", s.OrderNumber, s.Status)
			if s.Status == enums.OrderStatusPaid && !s.IsExpired {
				ticker.start(ctx, s.DispensingCodeExpiresAt)
				return
			}
			ticker.stop()
		},
		OnError: func(err error) {
			fmt.Fprintf(os.Stderr, "status check failed: %v\n", err)
		},
	})
	if err != nil {
		logg.Error(ctx, "failed to start poller", err)
		os.Exit(1)
	}

	last, reason, err := p.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "poller stopped unexpectedly", err)
		os.Exit(1)
	}
	ticker.stop()

	switch reason {
	case poller.StopExpired:
		fmt.Println("dispensing code expired")
	case poller.StopTerminal:
		if last != nil {
			fmt.Printf("order %s finished as %s\n", last.OrderNumber, last.Status)
		}
	}
}

// countdownPrinter shows the seconds left on a paid order's code, once per second.
type countdownPrinter struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	expiresAt time.Time
}

func (c *countdownPrinter) start(ctx context.Context, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil && c.expiresAt.Equal(expiresAt) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel, c.expiresAt = cancel, expiresAt
	go func() {
		for remaining := range dispensing.Countdown(ctx, expiresAt, time.Second, nil) {
			fmt.Printf("\rcode valid for %s   ", dispensing.FormatRemaining(remaining))
		}
		fmt.Println()
	}()
}

func (c *countdownPrinter) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
