package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vendcare-backend/internal/inventory"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

type machineLookup interface {
	Lookup(ctx context.Context, code string) (*models.VendingMachine, error)
}

type slotReader interface {
	GetSlot(ctx context.Context, machineID, productID uuid.UUID) (*inventory.Slot, error)
}

// CartView is the cart as returned to the buyer.
type CartView struct {
	MachineCode string          `json:"machine_code"`
	Items       []CartItem      `json:"items"`
	ItemCount   int             `json:"item_count"`
	Total       decimal.Decimal `json:"total"`
}

func viewOf(cart *Cart) *CartView {
	return &CartView{
		MachineCode: cart.MachineCode,
		Items:       cart.Items,
		ItemCount:   cart.Count(),
		Total:       cart.Total(),
	}
}

// CartService edits a buyer's cart for one machine, checking each change against live stock.
type CartService struct {
	store    CartStore
	machines machineLookup
	slots    slotReader
}

func NewCartService(store CartStore, machines machineLookup, slots slotReader) (*CartService, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if machines == nil {
		return nil, fmt.Errorf("machine lookup required")
	}
	if slots == nil {
		return nil, fmt.Errorf("slot reader required")
	}
	return &CartService{store: store, machines: machines, slots: slots}, nil
}

func (s *CartService) Get(ctx context.Context, userID uuid.UUID, machineCode string) (*CartView, error) {
	machine, err := s.machines.Lookup(ctx, machineCode)
	if err != nil {
		return nil, err
	}
	cart, err := s.load(ctx, userID, machine)
	if err != nil {
		return nil, err
	}
	return viewOf(cart), nil
}

// AddItem adds qty units of a product, pricing it from the catalog at this moment.
func (s *CartService) AddItem(ctx context.Context, userID uuid.UUID, machineCode string, productID uuid.UUID, qty int) (*CartView, error) {
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	machine, err := s.activeMachine(ctx, machineCode)
	if err != nil {
		return nil, err
	}
	cart, err := s.load(ctx, userID, machine)
	if err != nil {
		return nil, err
	}
	slot, err := s.sellableSlot(ctx, machine.ID, productID)
	if err != nil {
		return nil, err
	}
	existing, _ := cart.Find(productID)
	if err := checkAvailable(slot, existing.Quantity+qty); err != nil {
		return nil, err
	}
	if err := cart.Add(CartItem{
		ProductID:   productID,
		ProductName: slot.Product.Name,
		UnitPrice:   slot.Product.Price,
		SlotNumber:  slot.SlotNumber,
		Quantity:    qty,
	}); err != nil {
		return nil, err
	}
	return s.save(ctx, userID, cart)
}

// UpdateItem sets a line's quantity; zero removes the line.
func (s *CartService) UpdateItem(ctx context.Context, userID uuid.UUID, machineCode string, productID uuid.UUID, qty int) (*CartView, error) {
	machine, err := s.machines.Lookup(ctx, machineCode)
	if err != nil {
		return nil, err
	}
	cart, err := s.load(ctx, userID, machine)
	if err != nil {
		return nil, err
	}
	if qty > 0 {
		slot, err := s.sellableSlot(ctx, machine.ID, productID)
		if err != nil {
			return nil, err
		}
		if err := checkAvailable(slot, qty); err != nil {
			return nil, err
		}
	}
	if err := cart.SetQuantity(productID, qty); err != nil {
		return nil, err
	}
	return s.save(ctx, userID, cart)
}

func (s *CartService) RemoveItem(ctx context.Context, userID uuid.UUID, machineCode string, productID uuid.UUID) (*CartView, error) {
	return s.UpdateItem(ctx, userID, machineCode, productID, 0)
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID, machineCode string) error {
	machine, err := s.machines.Lookup(ctx, machineCode)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, userID.String(), machine.MachineCode); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// Session assembles the checkout session for the buyer's cart on a machine. Every line is
// repriced from the catalog first; a product withdrawn since it was added fails checkout.
func (s *CartService) Session(ctx context.Context, userID uuid.UUID, machineCode string) (*Session, error) {
	machine, err := s.machines.Lookup(ctx, machineCode)
	if err != nil {
		return nil, err
	}
	cart, err := s.load(ctx, userID, machine)
	if err != nil {
		return nil, err
	}

	changed := false
	for i := range cart.Items {
		item := &cart.Items[i]
		slot, err := s.sellableSlot(ctx, machine.ID, item.ProductID)
		if err != nil {
			return nil, err
		}
		if item.UnitPrice.Equal(slot.Product.Price) && item.ProductName == slot.Product.Name && item.SlotNumber == slot.SlotNumber {
			continue
		}
		item.UnitPrice = slot.Product.Price
		item.ProductName = slot.Product.Name
		item.SlotNumber = slot.SlotNumber
		changed = true
	}
	if changed {
		if _, err := s.save(ctx, userID, cart); err != nil {
			return nil, err
		}
	}
	return &Session{UserID: userID, Machine: machine, Cart: cart}, nil
}

func (s *CartService) activeMachine(ctx context.Context, code string) (*models.VendingMachine, error) {
	machine, err := s.machines.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if machine.Status != enums.MachineStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "machine is not accepting orders").
			WithDetails(map[string]any{"machine_status": machine.Status})
	}
	return machine, nil
}

func (s *CartService) sellableSlot(ctx context.Context, machineID, productID uuid.UUID) (*inventory.Slot, error) {
	slot, err := s.slots.GetSlot(ctx, machineID, productID)
	if err != nil {
		return nil, err
	}
	if slot.Product == nil || !slot.Product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available").
			WithDetails(map[string]any{"product_id": productID})
	}
	return slot, nil
}

func checkAvailable(slot *inventory.Slot, want int) error {
	if available := slot.Available(); want > available {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("only %d left in slot %s", available, slot.SlotNumber)).
			WithDetails(map[string]any{
				"product_id":  slot.ProductID,
				"slot_number": slot.SlotNumber,
				"requested":   want,
				"available":   available,
			})
	}
	return nil
}

func (s *CartService) load(ctx context.Context, userID uuid.UUID, machine *models.VendingMachine) (*Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user is required")
	}
	cart, err := s.store.Load(ctx, userID.String(), machine.MachineCode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, userID uuid.UUID, cart *Cart) (*CartView, error) {
	if err := s.store.Save(ctx, userID.String(), cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return viewOf(cart), nil
}
