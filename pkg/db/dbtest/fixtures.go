package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// MustCreateMachine inserts an active machine with the given code.
func MustCreateMachine(t testing.TB, db *gorm.DB, code string) *models.VendingMachine {
	t.Helper()
	machine := &models.VendingMachine{
		ID:          uuid.New(),
		MachineCode: code,
		Name:        "Machine " + code,
		Location:    "Ground floor",
		Status:      enums.MachineStatusActive,
	}
	require.NoError(t, db.Create(machine).Error)
	return machine
}

// MustCreateProduct inserts an active product priced at price (a decimal string).
func MustCreateProduct(t testing.TB, db *gorm.DB, name, price string) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:       uuid.New(),
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Category: "pads",
		IsActive: true,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// MustCreateSlot stocks product in a machine slot.
func MustCreateSlot(t testing.TB, db *gorm.DB, machineID, productID uuid.UUID, slot string, qty, capacity int) *models.MachineInventory {
	t.Helper()
	row := &models.MachineInventory{
		ID:                uuid.New(),
		MachineID:         machineID,
		ProductID:         productID,
		SlotNumber:        slot,
		QuantityAvailable: qty,
		MaxCapacity:       capacity,
	}
	require.NoError(t, db.Create(row).Error)
	return row
}

// MustCreatePaidOrder inserts a paid order with one line item and the given code.
func MustCreatePaidOrder(t testing.TB, db *gorm.DB, userID uuid.UUID, machine *models.VendingMachine, product *models.Product, code string, expiresAt time.Time) *models.Order {
	t.Helper()
	now := time.Now().UTC()
	order := &models.Order{
		ID:                      uuid.New(),
		OrderNumber:             "ORD-" + machine.MachineCode + "-" + code,
		UserID:                  userID,
		MachineID:               machine.ID,
		TotalAmount:             product.Price,
		Status:                  enums.OrderStatusPaid,
		PaymentMethod:           enums.PaymentMethodPhonePe,
		PaymentID:               "pay_" + uuid.NewString(),
		DispensingCode:          code,
		DispensingCodeExpiresAt: expiresAt.UTC(),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	require.NoError(t, db.Create(order).Error)
	item := &models.OrderItem{
		ID:         uuid.New(),
		OrderID:    order.ID,
		ProductID:  product.ID,
		SlotNumber: "A1",
		Quantity:   1,
		UnitPrice:  product.Price,
		TotalPrice: product.Price,
	}
	require.NoError(t, db.Create(item).Error)
	order.Items = []models.OrderItem{*item}
	return order
}
