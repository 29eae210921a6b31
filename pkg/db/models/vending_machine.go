package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// VendingMachine is a physical machine buyers scan to shop from.
type VendingMachine struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MachineCode string              `gorm:"column:machine_code;not null;uniqueIndex"`
	Name        string              `gorm:"column:name;not null"`
	Location    string              `gorm:"column:location;not null"`
	Latitude    *float64            `gorm:"column:latitude"`
	Longitude   *float64            `gorm:"column:longitude"`
	QRCode      *string             `gorm:"column:qr_code"`
	Status      enums.MachineStatus `gorm:"column:status;not null;default:'active'"`
	APIKeyHash  *string             `gorm:"column:api_key_hash" json:"-"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (VendingMachine) TableName() string { return "vending_machines" }
