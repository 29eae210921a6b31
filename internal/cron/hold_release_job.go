package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

const defaultBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type holdReleaser interface {
	ReleaseExpired(ctx context.Context, tx *gorm.DB, now time.Time, limit int) (int64, error)
}

// HoldReleaseJobParams configure the expired hold sweeper.
type HoldReleaseJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Holds     holdReleaser
	BatchSize int
}

// NewHoldReleaseJob builds the job that frees reserved holds whose TTL has lapsed, so stock
// parked by abandoned checkouts becomes sellable again.
func NewHoldReleaseJob(params HoldReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Holds == nil {
		return nil, fmt.Errorf("hold store required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &holdReleaseJob{
		logg:  params.Logger,
		db:    params.DB,
		holds: params.Holds,
		batch: batch,
		now:   time.Now,
	}, nil
}

type holdReleaseJob struct {
	logg  *logger.Logger
	db    txRunner
	holds holdReleaser
	batch int
	now   func() time.Time
}

func (j *holdReleaseJob) Name() string { return "hold-release" }

func (j *holdReleaseJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var released int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.holds.ReleaseExpired(ctx, tx, now, j.batch)
		if err != nil {
			return err
		}
		released = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("hold release: %w", err)
	}
	if released > 0 {
		j.logg.Info(j.logg.WithField(ctx, "holds_released", released), "expired inventory holds released")
	}
	return nil
}
