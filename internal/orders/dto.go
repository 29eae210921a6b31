package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendcare-backend/internal/dispensing"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// OrderDetail is the buyer-facing view of an order. Expiry fields are computed on the
// server so clients never derive them from their own clocks.
type OrderDetail struct {
	ID                      uuid.UUID           `json:"id"`
	OrderNumber             string              `json:"order_number"`
	Status                  enums.OrderStatus   `json:"status"`
	TotalAmount             decimal.Decimal     `json:"total_amount"`
	PaymentMethod           enums.PaymentMethod `json:"payment_method"`
	PaymentID               string              `json:"payment_id"`
	DispensingCode          string              `json:"dispensing_code"`
	DispensingCodeExpiresAt time.Time           `json:"dispensing_code_expires_at"`
	IsExpired               bool                `json:"is_expired"`
	SecondsRemaining        int                 `json:"seconds_remaining"`
	DispensedAt             *time.Time          `json:"dispensed_at,omitempty"`
	CompletedAt             *time.Time          `json:"completed_at,omitempty"`
	CreatedAt               time.Time           `json:"created_at"`
	Machine                 *MachineSummary     `json:"machine,omitempty"`
	Items                   []ItemDetail        `json:"items"`
}

type MachineSummary struct {
	ID          uuid.UUID `json:"id"`
	MachineCode string    `json:"machine_code"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
}

type ItemDetail struct {
	ProductID  uuid.UUID       `json:"product_id"`
	SlotNumber string          `json:"slot_number"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Dispensed  bool            `json:"dispensed"`
}

// OrderList is a page of orders.
type OrderList struct {
	Orders     []OrderDetail `json:"orders"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// ToDetail maps an order as of now.
func ToDetail(order *models.Order, now time.Time) OrderDetail {
	expired := dispensing.IsExpired(order, now)
	remaining := 0
	if order.Status == enums.OrderStatusPaid && !expired {
		remaining = dispensing.SecondsRemaining(order.DispensingCodeExpiresAt, now)
	}
	detail := OrderDetail{
		ID:                      order.ID,
		OrderNumber:             order.OrderNumber,
		Status:                  order.Status,
		TotalAmount:             order.TotalAmount,
		PaymentMethod:           order.PaymentMethod,
		PaymentID:               order.PaymentID,
		DispensingCode:          order.DispensingCode,
		DispensingCodeExpiresAt: order.DispensingCodeExpiresAt,
		IsExpired:               expired,
		SecondsRemaining:        remaining,
		DispensedAt:             order.DispensedAt,
		CompletedAt:             order.CompletedAt,
		CreatedAt:               order.CreatedAt,
		Items:                   make([]ItemDetail, 0, len(order.Items)),
	}
	if order.Machine != nil {
		detail.Machine = &MachineSummary{
			ID:          order.Machine.ID,
			MachineCode: order.Machine.MachineCode,
			Name:        order.Machine.Name,
			Location:    order.Machine.Location,
		}
	}
	for _, item := range order.Items {
		detail.Items = append(detail.Items, ItemDetail{
			ProductID:  item.ProductID,
			SlotNumber: item.SlotNumber,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: item.TotalPrice,
			Dispensed:  item.Dispensed,
		})
	}
	return detail
}
