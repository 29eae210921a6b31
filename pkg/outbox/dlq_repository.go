package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

const defaultDLQPage = 50

// ErrNotReplayable is returned when a dead letter failed for a reason a
// retry cannot fix.
var ErrNotReplayable = errors.New("outbox: dead letter is not replayable")

// DLQRepository stores events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return ErrNoTransaction
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	if entry.ErrorMessage != nil {
		msg := truncateError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil when the event was never dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the newest dead letters first.
func (r *DLQRepository) List(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	return r.list(ctx, limit, nil)
}

// ListReplayable returns the oldest entries that Replay would accept.
func (r *DLQRepository) ListReplayable(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	reasons := []enums.OutboxDLQErrorReason{enums.OutboxDLQReasonMaxAttempts, enums.OutboxDLQReasonUnroutable}
	return r.list(ctx, limit, reasons)
}

func (r *DLQRepository) list(ctx context.Context, limit int, reasons []enums.OutboxDLQErrorReason) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = defaultDLQPage
	}
	q := r.db.WithContext(ctx).Limit(limit)
	if reasons != nil {
		q = q.Where("error_reason IN ?", reasons).Order("failed_at ASC")
	} else {
		q = q.Order("failed_at DESC")
	}
	var rows []models.OutboxDLQ
	return rows, q.Find(&rows).Error
}

// Replay requeues the outbox row behind a dead letter and removes the entry.
// The publisher picks the row up on its next batch.
func (r *DLQRepository) Replay(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.OutboxDLQ
		if err := tx.Where("id = ?", id).First(&entry).Error; err != nil {
			return err
		}
		if !entry.ErrorReason.Replayable() {
			return fmt.Errorf("%w: %s", ErrNotReplayable, entry.ErrorReason)
		}
		res := tx.Model(&models.OutboxEvent{}).
			Where("id = ? AND published_at IS NULL", entry.EventID).
			Updates(map[string]any{"attempt_count": 0, "last_error": nil})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("outbox event %s no longer pending", entry.EventID)
		}
		return tx.Delete(&models.OutboxDLQ{}, "id = ?", entry.ID).Error
	})
}

func truncateError(message string) string {
	if len(message) <= maxErrorLen {
		return message
	}
	return message[:maxErrorLen]
}
