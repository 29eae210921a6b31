package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// Repository persists checkout sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.CheckoutSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.CheckoutSession, error)
	FindByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.CheckoutSession, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.CheckoutStatus, updates map[string]any) (bool, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.CheckoutSession, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout session repository backed by db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	if session == nil {
		return errors.New("checkout session is required")
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	return r.first(ctx, r.db.Where("id = ?", id))
}

func (r *repository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.CheckoutSession, error) {
	return r.first(ctx, r.db.Where("id = ? AND user_id = ?", id, userID))
}

func (r *repository) FindByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.CheckoutSession, error) {
	return r.first(ctx, r.db.Where("merchant_order_id = ?", merchantOrderID))
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// TransitionStatus moves a session out of from, reporting whether this call did it.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.CheckoutStatus, updates map[string]any) (bool, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

// ListExpiredPending returns pending sessions whose holds have lapsed, oldest first.
func (r *repository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.CheckoutSession, error) {
	var rows []models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND hold_expires_at <= ?", enums.CheckoutStatusPending, now.UTC()).
		Order("hold_expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) first(ctx context.Context, query *gorm.DB) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := query.WithContext(ctx).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}
