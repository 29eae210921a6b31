package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// InventoryHold reserves slot quantity for a pending checkout session.
type InventoryHold struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CheckoutSessionID uuid.UUID        `gorm:"column:checkout_session_id;type:uuid;not null"`
	MachineID         uuid.UUID        `gorm:"column:machine_id;type:uuid;not null"`
	ProductID         uuid.UUID        `gorm:"column:product_id;type:uuid;not null"`
	SlotNumber        string           `gorm:"column:slot_number;not null"`
	Quantity          int              `gorm:"column:quantity;not null"`
	Status            enums.HoldStatus `gorm:"column:status;not null;default:'reserved'"`
	ExpiresAt         time.Time        `gorm:"column:expires_at;not null"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryHold) TableName() string { return "inventory_holds" }
