package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	"github.com/angelmondragon/vendcare-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateItems(ctx context.Context, items []models.OrderItem) error
	Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	MarkItemsDispensed(ctx context.Context, orderID uuid.UUID) error
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, string, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	FindByDispensingCode(ctx context.Context, machineID uuid.UUID, code string) (*models.Order, error)
	ListExpiredPaid(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
}

// ListFilter narrows an order listing. UserID is always applied for buyer listings.
type ListFilter struct {
	UserID    *uuid.UUID
	MachineID *uuid.UUID
	Statuses  []enums.OrderStatus
}
