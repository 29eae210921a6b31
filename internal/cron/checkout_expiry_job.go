package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

type staleCheckoutExpirer interface {
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// CheckoutExpiryJobParams configure the checkout session sweeper.
type CheckoutExpiryJobParams struct {
	Logger    *logger.Logger
	Checkout  staleCheckoutExpirer
	BatchSize int
}

// NewCheckoutExpiryJob builds the job that closes pending checkout sessions whose holds
// lapsed before payment was confirmed.
func NewCheckoutExpiryJob(params CheckoutExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &checkoutExpiryJob{logg: params.Logger, checkout: params.Checkout, batch: batch}, nil
}

type checkoutExpiryJob struct {
	logg     *logger.Logger
	checkout staleCheckoutExpirer
	batch    int
}

func (j *checkoutExpiryJob) Name() string { return "checkout-expiry" }

func (j *checkoutExpiryJob) Run(ctx context.Context) error {
	expired, err := j.checkout.ExpireStale(ctx, j.batch)
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "sessions_expired", expired), "stale checkout sessions expired")
	}
	if err != nil {
		return fmt.Errorf("checkout expiry: %w", err)
	}
	return nil
}
