package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// Order is created only once the payment is confirmed.
type Order struct {
	ID                      uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber             string              `gorm:"column:order_number;not null"`
	UserID                  uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	MachineID               uuid.UUID           `gorm:"column:machine_id;type:uuid;not null"`
	TotalAmount             decimal.Decimal     `gorm:"column:total_amount;type:numeric(10,2);not null"`
	Status                  enums.OrderStatus   `gorm:"column:status;not null;default:'paid'"`
	PaymentMethod           enums.PaymentMethod `gorm:"column:payment_method;not null;default:'phonepe'"`
	PaymentID               string              `gorm:"column:payment_id;not null;uniqueIndex"`
	DispensingCode          string              `gorm:"column:dispensing_code;not null"`
	DispensingCodeExpiresAt time.Time           `gorm:"column:dispensing_code_expires_at;not null"`
	DispensedAt             *time.Time          `gorm:"column:dispensed_at"`
	CompletedAt             *time.Time          `gorm:"column:completed_at"`
	CreatedAt               time.Time           `gorm:"column:created_at"`
	UpdatedAt               time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Items   []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Machine *VendingMachine `gorm:"foreignKey:MachineID;references:ID"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is a line of an order, priced at the moment of purchase.
type OrderItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	SlotNumber string          `gorm:"column:slot_number;not null"`
	Quantity   int             `gorm:"column:quantity;not null"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	TotalPrice decimal.Decimal `gorm:"column:total_price;type:numeric(10,2);not null"`
	Dispensed  bool            `gorm:"column:dispensed;not null;default:false"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }
