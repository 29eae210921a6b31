package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// CartLine is the snapshot of a cart line captured when checkout starts.
type CartLine struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	SlotNumber  string          `json:"slot_number"`
}

// CartLines is stored as jsonb.
type CartLines []CartLine

// CheckoutSession links a buyer's cart to a gateway payment session.
type CheckoutSession struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	MachineID        uuid.UUID            `gorm:"column:machine_id;type:uuid;not null"`
	MachineCode      string               `gorm:"column:machine_code;not null"`
	OrderNumber      string               `gorm:"column:order_number;not null"`
	MerchantOrderID  *string              `gorm:"column:merchant_order_id"`
	ProviderOrderID  *string              `gorm:"column:provider_order_id"`
	RedirectURL      *string              `gorm:"column:redirect_url"`
	TotalAmount      decimal.Decimal      `gorm:"column:total_amount;type:numeric(10,2);not null"`
	Status           enums.CheckoutStatus `gorm:"column:status;not null;default:'pending'"`
	Cart             CartLines            `gorm:"column:cart;type:jsonb;serializer:json;not null"`
	GatewayExpiresAt *time.Time           `gorm:"column:gateway_expires_at"`
	HoldExpiresAt    time.Time            `gorm:"column:hold_expires_at;not null"`
	OrderID          *uuid.UUID           `gorm:"column:order_id;type:uuid"`
	FailureReason    *string              `gorm:"column:failure_reason"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (CheckoutSession) TableName() string { return "checkout_sessions" }
