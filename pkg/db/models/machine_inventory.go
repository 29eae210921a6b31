package models

import (
	"time"

	"github.com/google/uuid"
)

// MachineInventory is one slot of a machine: a product plus its stock count.
type MachineInventory struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MachineID         uuid.UUID `gorm:"column:machine_id;type:uuid;not null"`
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	SlotNumber        string    `gorm:"column:slot_number;not null"`
	QuantityAvailable int       `gorm:"column:quantity_available;not null;default:0"`
	MaxCapacity       int       `gorm:"column:max_capacity;not null"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Product *Product `gorm:"foreignKey:ProductID;references:ID"`
}

func (MachineInventory) TableName() string { return "machine_inventory" }
