package checkout

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

// Session is the buyer, the machine they scanned and their cart. It is passed into every
// checkout call instead of living in shared state.
type Session struct {
	UserID  uuid.UUID
	Machine *models.VendingMachine
	Cart    *Cart
}

func (s *Session) validate() error {
	if s == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session is required")
	}
	if s.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user is required")
	}
	if s.Machine == nil || s.Machine.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "machine is required")
	}
	if s.Cart == nil || s.Cart.IsEmpty() {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, item := range s.Cart.Items {
		if item.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
	}
	return nil
}

// CartItem is a product snapshot taken when the buyer added it.
type CartItem struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SlotNumber  string          `json:"slot_number"`
	Quantity    int             `json:"quantity"`
}

// LineTotal is unit price times quantity at 2dp.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

// Cart holds one buyer's items for one machine.
type Cart struct {
	MachineCode string     `json:"machine_code"`
	Items       []CartItem `json:"items"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func NewCart(machineCode string) *Cart {
	return &Cart{MachineCode: strings.TrimSpace(machineCode), Items: []CartItem{}}
}

// Add puts an item in the cart, merging quantities when the product is already there.
func (c *Cart) Add(item CartItem) error {
	if item.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product is required")
	}
	if item.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			c.Items[i].UnitPrice = item.UnitPrice
			c.Items[i].ProductName = item.ProductName
			c.Items[i].SlotNumber = item.SlotNumber
			return nil
		}
	}
	c.Items = append(c.Items, item)
	return nil
}

// SetQuantity changes a line's quantity; zero removes it.
func (c *Cart) SetQuantity(productID uuid.UUID, qty int) error {
	if qty < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if qty == 0 {
		if !c.Remove(productID) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
		}
		return nil
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = qty
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
}

func (c *Cart) Remove(productID uuid.UUID) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Cart) Clear() {
	c.Items = []CartItem{}
}

func (c *Cart) Find(productID uuid.UUID) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Count is the number of units across all lines.
func (c *Cart) Count() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Total sums line totals at 2dp.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total.Round(2)
}

func (c *Cart) snapshot() models.CartLines {
	lines := make(models.CartLines, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, models.CartLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			SlotNumber:  item.SlotNumber,
		})
	}
	return lines
}
