package inventory

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

// HoldRequest asks for qty units of a product on behalf of a checkout session.
type HoldRequest struct {
	ProductID  uuid.UUID
	SlotNumber string
	Quantity   int
}

// Reserve places reserved holds for every line. It fails without writing anything for a
// line whose slot cannot cover the quantity once other live holds are subtracted; the
// caller's transaction is expected to roll back on error.
func (s *Store) Reserve(ctx context.Context, tx *gorm.DB, sessionID, machineID uuid.UUID, lines []HoldRequest, ttl time.Duration) ([]models.InventoryHold, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to reserve")
	}

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
	}

	// Every slot is locked before live holds are summed, so a concurrent reservation that
	// committed while this one waited on the lock is counted. Locks go in product order.
	slots := make(map[uuid.UUID]*models.MachineInventory, len(lines))
	for _, productID := range lockOrder(lines) {
		slot, err := s.lockSlot(ctx, tx, machineID, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not stocked in this machine").
					WithDetails(map[string]any{"product_id": productID})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock inventory slot")
		}
		slots[productID] = slot
	}

	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	reserved, err := s.reservedQuantities(ctx, tx, machineID)
	if err != nil {
		return nil, err
	}

	holds := make([]models.InventoryHold, 0, len(lines))
	for _, line := range lines {
		slot := slots[line.ProductID]
		if line.SlotNumber != "" && line.SlotNumber != slot.SlotNumber {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "slot does not hold this product").
				WithDetails(map[string]any{"product_id": line.ProductID, "slot_number": line.SlotNumber})
		}

		free := slot.QuantityAvailable - reserved[slot.SlotNumber]
		if free < line.Quantity {
			if free < 0 {
				free = 0
			}
			return nil, &ShortageError{
				ProductID:  line.ProductID,
				SlotNumber: slot.SlotNumber,
				Requested:  line.Quantity,
				Available:  free,
			}
		}
		reserved[slot.SlotNumber] += line.Quantity

		holds = append(holds, models.InventoryHold{
			ID:                uuid.New(),
			CheckoutSessionID: sessionID,
			MachineID:         machineID,
			ProductID:         line.ProductID,
			SlotNumber:        slot.SlotNumber,
			Quantity:          line.Quantity,
			Status:            enums.HoldStatusReserved,
			ExpiresAt:         expiresAt,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	if err := tx.WithContext(ctx).Create(&holds).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create inventory holds")
	}
	return holds, nil
}

// Commit moves the session's reserved holds to committed and returns them. Holds that
// already left the reserved state are untouched.
func (s *Store) Commit(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]models.InventoryHold, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var holds []models.InventoryHold
	if err := tx.WithContext(ctx).
		Where("checkout_session_id = ? AND status = ?", sessionID, enums.HoldStatusReserved).
		Order("slot_number ASC").
		Find(&holds).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory holds")
	}
	if len(holds) == 0 {
		return nil, nil
	}
	if _, err := s.transition(ctx, tx, sessionID, enums.HoldStatusCommitted); err != nil {
		return nil, err
	}
	for i := range holds {
		holds[i].Status = enums.HoldStatusCommitted
	}
	return holds, nil
}

// Release frees the session's reserved holds. Committed holds are never released.
func (s *Store) Release(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int64, error) {
	return s.transition(ctx, s.conn(ctx, tx), sessionID, enums.HoldStatusReleased)
}

// ReleaseExpired releases up to limit reserved holds whose expiry has passed.
func (s *Store) ReleaseExpired(ctx context.Context, tx *gorm.DB, now time.Time, limit int) (int64, error) {
	db := s.conn(ctx, tx)
	sub := db.Model(&models.InventoryHold{}).
		Select("id").
		Where("status = ? AND expires_at <= ?", enums.HoldStatusReserved, now.UTC()).
		Limit(limit)
	res := db.Model(&models.InventoryHold{}).
		Where("id IN (?) AND status = ?", sub, enums.HoldStatusReserved).
		Updates(map[string]any{
			"status":     enums.HoldStatusReleased,
			"updated_at": s.now().UTC(),
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release expired holds")
	}
	return res.RowsAffected, nil
}

// lockOrder returns the distinct products of lines sorted by id. Two carts holding the
// same products in a different order lock them in the same sequence.
func lockOrder(lines []HoldRequest) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return ids
}

// HoldsForSession lists every hold of a session regardless of status.
func (s *Store) HoldsForSession(ctx context.Context, sessionID uuid.UUID) ([]models.InventoryHold, error) {
	var holds []models.InventoryHold
	err := s.db.WithContext(ctx).
		Where("checkout_session_id = ?", sessionID).
		Order("slot_number ASC").
		Find(&holds).Error
	return holds, err
}

func (s *Store) transition(ctx context.Context, db *gorm.DB, sessionID uuid.UUID, to enums.HoldStatus) (int64, error) {
	res := db.WithContext(ctx).
		Model(&models.InventoryHold{}).
		Where("checkout_session_id = ? AND status = ?", sessionID, enums.HoldStatusReserved).
		Updates(map[string]any{
			"status":     to,
			"updated_at": s.now().UTC(),
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update inventory holds")
	}
	return res.RowsAffected, nil
}
