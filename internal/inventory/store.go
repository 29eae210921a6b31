package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

// ErrInsufficientStock is returned when a slot cannot cover the requested quantity.
var ErrInsufficientStock = errors.New("insufficient stock")

// ShortageError describes which slot came up short. It matches ErrInsufficientStock.
type ShortageError struct {
	ProductID  uuid.UUID
	SlotNumber string
	Requested  int
	Available  int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock in slot %s: requested %d, available %d", e.SlotNumber, e.Requested, e.Available)
}

func (e *ShortageError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Slot is a machine slot with its stock and the quantity currently held by pending checkouts.
type Slot struct {
	ID                uuid.UUID
	MachineID         uuid.UUID
	ProductID         uuid.UUID
	SlotNumber        string
	QuantityAvailable int
	MaxCapacity       int
	Reserved          int
	Product           *models.Product
}

// Available is the stock a new buyer may still claim.
func (s Slot) Available() int {
	if free := s.QuantityAvailable - s.Reserved; free > 0 {
		return free
	}
	return 0
}

// Store reads and mutates machine_inventory and inventory_holds.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithTx returns a store bound to the provided transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, now: s.now}
}

func (s *Store) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// GetSlot returns the slot that stocks productID in machineID.
func (s *Store) GetSlot(ctx context.Context, machineID, productID uuid.UUID) (*Slot, error) {
	var row models.MachineInventory
	err := s.db.WithContext(ctx).
		Preload("Product").
		Where("machine_id = ? AND product_id = ?", machineID, productID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is not stocked in this machine")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory slot")
	}

	reserved, err := s.reservedQuantities(ctx, s.db, machineID)
	if err != nil {
		return nil, err
	}
	slot := toSlot(row, reserved[row.SlotNumber])
	return &slot, nil
}

// ListMachineSlots returns every slot of a machine ordered by slot number.
func (s *Store) ListMachineSlots(ctx context.Context, machineID uuid.UUID) ([]Slot, error) {
	var rows []models.MachineInventory
	err := s.db.WithContext(ctx).
		Preload("Product").
		Where("machine_id = ?", machineID).
		Order("slot_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory slots")
	}

	reserved, err := s.reservedQuantities(ctx, s.db, machineID)
	if err != nil {
		return nil, err
	}
	slots := make([]Slot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, toSlot(row, reserved[row.SlotNumber]))
	}
	return slots, nil
}

// Update sets the stock of a slot after a restock. Values outside [0, max_capacity] are rejected.
func (s *Store) Update(ctx context.Context, machineID, productID uuid.UUID, quantityAvailable int) (*Slot, error) {
	if quantityAvailable < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity_available cannot be negative").
			WithDetails(map[string]any{"quantity_available": quantityAvailable})
	}

	var row models.MachineInventory
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND product_id = ?", machineID, productID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory slot not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory slot")
	}
	if quantityAvailable > row.MaxCapacity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity_available exceeds slot capacity").
			WithDetails(map[string]any{"quantity_available": quantityAvailable, "max_capacity": row.MaxCapacity})
	}

	res := s.db.WithContext(ctx).
		Model(&models.MachineInventory{}).
		Where("id = ? AND max_capacity >= ?", row.ID, quantityAvailable).
		Updates(map[string]any{
			"quantity_available": quantityAvailable,
			"updated_at":         s.now().UTC(),
		})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update inventory slot")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "inventory slot changed concurrently")
	}

	return s.GetSlot(ctx, machineID, productID)
}

// Decrement removes qty units from a slot in one conditional statement. No rows affected
// means the slot could not cover qty and nothing was changed.
func (s *Store) Decrement(ctx context.Context, tx *gorm.DB, machineID, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "decrement quantity must be positive")
	}
	res := s.conn(ctx, tx).
		Model(&models.MachineInventory{}).
		Where("machine_id = ? AND product_id = ? AND quantity_available >= ?", machineID, productID, qty).
		Updates(map[string]any{
			"quantity_available": gorm.Expr("quantity_available - ?", qty),
			"updated_at":         s.now().UTC(),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement inventory slot")
	}
	if res.RowsAffected == 0 {
		return s.shortage(ctx, tx, machineID, productID, qty)
	}
	return nil
}

// shortage reads the slot a failed decrement targeted so the error names what was left.
func (s *Store) shortage(ctx context.Context, tx *gorm.DB, machineID, productID uuid.UUID, qty int) error {
	var row models.MachineInventory
	err := s.conn(ctx, tx).
		Where("machine_id = ? AND product_id = ?", machineID, productID).
		First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &ShortageError{ProductID: productID, Requested: qty}
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read inventory slot")
	}
	return &ShortageError{
		ProductID:  productID,
		SlotNumber: row.SlotNumber,
		Requested:  qty,
		Available:  max(row.QuantityAvailable, 0),
	}
}

// lockSlot reads a slot for update so concurrent reservations on it serialize.
func (s *Store) lockSlot(ctx context.Context, tx *gorm.DB, machineID, productID uuid.UUID) (*models.MachineInventory, error) {
	query := tx.WithContext(ctx).Where("machine_id = ? AND product_id = ?", machineID, productID)
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.MachineInventory
	if err := query.First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

type reservedRow struct {
	SlotNumber string
	Total      int
}

func (s *Store) reservedQuantities(ctx context.Context, db *gorm.DB, machineID uuid.UUID) (map[string]int, error) {
	var rows []reservedRow
	err := db.WithContext(ctx).
		Model(&models.InventoryHold{}).
		Select("slot_number, COALESCE(SUM(quantity), 0) AS total").
		Where("machine_id = ? AND status = ? AND expires_at > ?", machineID, enums.HoldStatusReserved, s.now().UTC()).
		Group("slot_number").
		Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum reserved inventory")
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.SlotNumber] = row.Total
	}
	return out, nil
}

func toSlot(row models.MachineInventory, reserved int) Slot {
	return Slot{
		ID:                row.ID,
		MachineID:         row.MachineID,
		ProductID:         row.ProductID,
		SlotNumber:        row.SlotNumber,
		QuantityAvailable: row.QuantityAvailable,
		MaxCapacity:       row.MaxCapacity,
		Reserved:          reserved,
		Product:           row.Product,
	}
}
