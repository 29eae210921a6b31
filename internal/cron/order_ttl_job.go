package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

type overdueOrderExpirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// OrderTTLJobParams configure the dispensing window sweeper.
type OrderTTLJobParams struct {
	Logger     *logger.Logger
	Dispensing overdueOrderExpirer
	BatchSize  int
}

// NewOrderTTLJob builds the job that moves paid orders past their dispensing code window
// to expired.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Dispensing == nil {
		return nil, fmt.Errorf("dispensing service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &orderTTLJob{logg: params.Logger, dispensing: params.Dispensing, batch: batch}, nil
}

type orderTTLJob struct {
	logg       *logger.Logger
	dispensing overdueOrderExpirer
	batch      int
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

// Run expires what it can. Per-order failures are combined into the returned error after
// the rest of the batch has been processed.
func (j *orderTTLJob) Run(ctx context.Context) error {
	expired, err := j.dispensing.ExpireOverdue(ctx, j.batch)
	logCtx := j.logg.WithField(ctx, "orders_expired", expired)
	if err != nil {
		j.logg.Warn(logCtx, "some overdue orders could not be expired")
		return fmt.Errorf("order ttl: %w", err)
	}
	if expired > 0 {
		j.logg.Info(logCtx, "overdue dispensing codes expired")
	}
	return nil
}
