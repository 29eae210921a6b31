package machines

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendcare-backend/internal/inventory"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// MachineDTO is the public view of a machine and what it currently offers.
type MachineDTO struct {
	ID          uuid.UUID           `json:"id"`
	MachineCode string              `json:"machine_code"`
	Name        string              `json:"name"`
	Location    string              `json:"location"`
	Latitude    *float64            `json:"latitude,omitempty"`
	Longitude   *float64            `json:"longitude,omitempty"`
	Status      enums.MachineStatus `json:"status"`
	Slots       []SlotDTO           `json:"slots"`
}

type SlotDTO struct {
	SlotNumber        string          `json:"slot_number"`
	ProductID         uuid.UUID       `json:"product_id"`
	ProductName       string          `json:"product_name"`
	Category          string          `json:"category,omitempty"`
	ImageURL          *string         `json:"image_url,omitempty"`
	Price             decimal.Decimal `json:"price"`
	QuantityAvailable int             `json:"quantity_available"`
	MaxCapacity       int             `json:"max_capacity"`
	InStock           bool            `json:"in_stock"`
}

func toMachineDTO(machine *models.VendingMachine, slots []inventory.Slot) MachineDTO {
	dto := MachineDTO{
		ID:          machine.ID,
		MachineCode: machine.MachineCode,
		Name:        machine.Name,
		Location:    machine.Location,
		Latitude:    machine.Latitude,
		Longitude:   machine.Longitude,
		Status:      machine.Status,
		Slots:       make([]SlotDTO, 0, len(slots)),
	}
	for _, slot := range slots {
		if slot.Product == nil || !slot.Product.IsActive {
			continue
		}
		dto.Slots = append(dto.Slots, SlotDTO{
			SlotNumber:        slot.SlotNumber,
			ProductID:         slot.ProductID,
			ProductName:       slot.Product.Name,
			Category:          slot.Product.Category,
			ImageURL:          slot.Product.ImageURL,
			Price:             slot.Product.Price,
			QuantityAvailable: slot.Available(),
			MaxCapacity:       slot.MaxCapacity,
			InStock:           slot.Available() > 0,
		})
	}
	return dto
}
