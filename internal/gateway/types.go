package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

// DefaultExpireAfter is the payment page lifetime requested from the broker.
const DefaultExpireAfter = 1200 * time.Second

// OrderIntent is everything the broker needs to open a payment page.
type OrderIntent struct {
	UserID      uuid.UUID
	MachineID   uuid.UUID
	MachineCode string
	Items       []IntentItem
	RedirectURL string
	ExpireAfter time.Duration
	MetaInfo    MetaInfo
}

type IntentItem struct {
	ProductID   uuid.UUID
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
	SlotNumber  string
}

// MetaInfo carries the broker's free-form udf fields.
type MetaInfo struct {
	UDF1 string `json:"udf1,omitempty"`
	UDF2 string `json:"udf2,omitempty"`
	UDF3 string `json:"udf3,omitempty"`
	UDF4 string `json:"udf4,omitempty"`
	UDF5 string `json:"udf5,omitempty"`
}

// Session is the broker's answer to a create call.
type Session struct {
	BrokerOrderID   string
	MerchantOrderID string
	ProviderOrderID string
	RedirectURL     string
	Amount          decimal.Decimal
	Status          string
	ExpiresAt       *time.Time
}

// Status is the broker's view of a payment.
type Status struct {
	MerchantOrderID string
	Status          enums.PaymentStatus
	TransactionID   string
	Amount          decimal.Decimal
	PaymentMethod   string
	PaidAt          *time.Time
	UTR             string
	ErrorMessage    string
}

// OrderSnapshot is the order view served at /api/v1/orders/{id}.
type OrderSnapshot struct {
	ID                      uuid.UUID         `json:"id"`
	OrderNumber             string            `json:"order_number"`
	Status                  enums.OrderStatus `json:"status"`
	DispensingCode          string            `json:"dispensing_code"`
	DispensingCodeExpiresAt time.Time         `json:"dispensing_code_expires_at"`
	IsExpired               bool              `json:"is_expired"`
	SecondsRemaining        int               `json:"seconds_remaining"`
}

type createRequest struct {
	UserID      string       `json:"user_id"`
	MachineID   string       `json:"machine_id"`
	MachineCode string       `json:"machine_code"`
	Items       []createItem `json:"items"`
	RedirectURL string       `json:"redirect_url"`
	ExpireAfter int          `json:"expire_after,omitempty"`
	MetaInfo    *MetaInfo    `json:"meta_info,omitempty"`
}

type createItem struct {
	ProductID    string      `json:"product_id"`
	ProductName  string      `json:"product_name"`
	ProductPrice json.Number `json:"product_price"`
	Quantity     int         `json:"quantity"`
	SlotNumber   string      `json:"slot_number,omitempty"`
}

type createResponse struct {
	OrderID         string          `json:"order_id"`
	MerchantOrderID string          `json:"merchant_order_id"`
	PhonePeOrderID  string          `json:"phonepe_order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	RedirectURL     string          `json:"redirect_url"`
	ExpiresAt       *time.Time      `json:"expires_at"`
}

type statusResponse struct {
	MerchantOrderID string          `json:"merchant_order_id"`
	TransactionID   string          `json:"phonepe_transaction_id"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   string          `json:"payment_method"`
	PaidAt          *time.Time      `json:"paid_at"`
	UTR             string          `json:"utr"`
	ErrorMessage    string          `json:"error_message"`
}
