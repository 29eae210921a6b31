package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// CartLine is one item of a checkout snapshot.
type CartLine struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SlotNumber  string          `json:"slot_number"`
	Quantity    int             `json:"quantity"`
}

// CheckoutInitiatedEvent is emitted once holds are placed for a new checkout session.
type CheckoutInitiatedEvent struct {
	SessionID   uuid.UUID       `json:"session_id"`
	OrderNumber string          `json:"order_number"`
	MachineCode string          `json:"machine_code"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []CartLine      `json:"items"`
}

// CheckoutClosedEvent covers cancelled, failed and expired sessions.
type CheckoutClosedEvent struct {
	SessionID   uuid.UUID            `json:"session_id"`
	OrderNumber string               `json:"order_number"`
	Status      enums.CheckoutStatus `json:"status"`
	Reason      string               `json:"reason,omitempty"`
}

// OrderPaidEvent is emitted in the finalize transaction.
type OrderPaidEvent struct {
	OrderID                 uuid.UUID       `json:"order_id"`
	OrderNumber             string          `json:"order_number"`
	SessionID               uuid.UUID       `json:"session_id"`
	MachineCode             string          `json:"machine_code"`
	PaymentID               string          `json:"payment_id"`
	TransactionID           string          `json:"transaction_id,omitempty"`
	TotalAmount             decimal.Decimal `json:"total_amount"`
	DispensingCodeExpiresAt time.Time       `json:"dispensing_code_expires_at"`
}

// FinalizationFailedEvent records a captured payment that did not become an order.
// Consumers use it to drive refunds.
type FinalizationFailedEvent struct {
	SessionID   uuid.UUID       `json:"session_id"`
	PaymentID   string          `json:"payment_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Reason      string          `json:"reason"`
	ProductID   uuid.UUID       `json:"product_id"`
	SlotNumber  string          `json:"slot_number,omitempty"`
	Requested   int             `json:"requested"`
	Available   int             `json:"available"`
}

type DispensedItem struct {
	ProductID  uuid.UUID `json:"product_id"`
	SlotNumber string    `json:"slot_number"`
	Quantity   int       `json:"quantity"`
}

// OrderDispensedEvent is emitted when a machine redeems a code.
type OrderDispensedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	DispensedAt time.Time         `json:"dispensed_at"`
	Items       []DispensedItem   `json:"items"`
}

type OrderFailedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Reason    string    `json:"reason"`
}

type OrderCompletedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// OrderExpiredEvent is emitted when a paid order's dispensing code lapses unused.
type OrderExpiredEvent struct {
	OrderID                 uuid.UUID `json:"order_id"`
	PaymentID               string    `json:"payment_id"`
	DispensingCodeExpiresAt time.Time `json:"dispensing_code_expires_at"`
}
