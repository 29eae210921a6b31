package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	"github.com/angelmondragon/vendcare-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to order operations.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order row only; line items are written with CreateItems.
func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order == nil {
		return nil, errors.New("order is required")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Omit("Items", "Machine").Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// CreateItems inserts all line items in a single statement.
func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

// TransitionStatus moves an order from one status to another only if it is still in
// from. It reports whether a row changed.
func (r *repository) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) MarkItemsDispensed(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ?", orderID).
		Update("dispensed", true).Error
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return r.first(ctx, r.db.Where("id = ?", orderID))
}

// GetForUser loads an order only when it belongs to userID.
func (r *repository) GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	return r.first(ctx, r.db.Where("id = ? AND user_id = ?", orderID, userID))
}

func (r *repository) FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	return r.first(ctx, r.db.Where("payment_id = ?", paymentID))
}

// FindByDispensingCode returns the newest order on a machine carrying code.
func (r *repository) FindByDispensingCode(ctx context.Context, machineID uuid.UUID, code string) (*models.Order, error) {
	return r.first(ctx, r.db.Where("machine_id = ? AND dispensing_code = ?", machineID, code).Order("created_at DESC"))
}

// ListExpiredPaid returns paid orders whose dispensing window closed before now.
func (r *repository) ListExpiredPaid(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND dispensing_code_expires_at <= ?", enums.OrderStatusPaid, now.UTC()).
		Order("dispensing_code_expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// List returns one page of orders newest first plus the cursor for the next page.
func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).Model(&models.Order{}).Preload("Items").Preload("Machine")
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.MachineID != nil {
		query = query.Where("machine_id = ?", *filter.MachineID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error; err != nil {
		return nil, "", err
	}

	rows, next := pagination.Split(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return rows, next, nil
}

func (r *repository) first(ctx context.Context, query *gorm.DB) (*models.Order, error) {
	var order models.Order
	err := query.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("slot_number ASC") }).
		Preload("Machine").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}
