package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

type fixture struct {
	db      *gorm.DB
	store   *Store
	machine *models.VendingMachine
	pads    *models.Product
	liners  *models.Product
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t)
	machine := dbtest.MustCreateMachine(t, db, "VM001")
	pads := dbtest.MustCreateProduct(t, db, "Organic pads", "4.50")
	liners := dbtest.MustCreateProduct(t, db, "Panty liners", "2.25")
	dbtest.MustCreateSlot(t, db, machine.ID, pads.ID, "A1", 5, 10)
	dbtest.MustCreateSlot(t, db, machine.ID, liners.ID, "A2", 1, 8)
	return fixture{db: db, store: NewStore(db), machine: machine, pads: pads, liners: liners}
}

func TestGetSlotAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slot, err := f.store.GetSlot(ctx, f.machine.ID, f.pads.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1", slot.SlotNumber)
	assert.Equal(t, 5, slot.QuantityAvailable)
	assert.Equal(t, 10, slot.MaxCapacity)
	require.NotNil(t, slot.Product)
	assert.Equal(t, "Organic pads", slot.Product.Name)

	slots, err := f.store.ListMachineSlots(ctx, f.machine.ID)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "A1", slots[0].SlotNumber)
	assert.Equal(t, "A2", slots[1].SlotNumber)

	_, err = f.store.GetSlot(ctx, f.machine.ID, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateEnforcesCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slot, err := f.store.Update(ctx, f.machine.ID, f.pads.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, slot.QuantityAvailable)

	_, err = f.store.Update(ctx, f.machine.ID, f.pads.ID, 11)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.store.Update(ctx, f.machine.ID, f.pads.ID, -1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	slot, err = f.store.Update(ctx, f.machine.ID, f.pads.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, slot.QuantityAvailable)
}

func TestDecrementIsConditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Decrement(ctx, nil, f.machine.ID, f.pads.ID, 3))

	err := f.store.Decrement(ctx, nil, f.machine.ID, f.pads.ID, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	slot, err := f.store.GetSlot(ctx, f.machine.ID, f.pads.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, slot.QuantityAvailable)

	require.NoError(t, f.store.Decrement(ctx, nil, f.machine.ID, f.pads.ID, 2))
	slot, err = f.store.GetSlot(ctx, f.machine.ID, f.pads.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, slot.QuantityAvailable)

	assert.Error(t, f.store.Decrement(ctx, nil, f.machine.ID, f.pads.ID, 0))
}

func TestDecrementInsideRolledBackTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := f.store.Decrement(ctx, tx, f.machine.ID, f.pads.ID, 1); err != nil {
			return err
		}
		return f.store.Decrement(ctx, tx, f.machine.ID, f.liners.ID, 2)
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	slot, err := f.store.GetSlot(ctx, f.machine.ID, f.pads.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, slot.QuantityAvailable)
}

func TestSlotAvailableSubtractsLiveHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.store.Reserve(ctx, tx, uuid.New(), f.machine.ID, []HoldRequest{{ProductID: f.pads.ID, Quantity: 4}}, time.Minute)
		return err
	})
	require.NoError(t, err)

	slot, err := f.store.GetSlot(ctx, f.machine.ID, f.pads.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, slot.Reserved)
	assert.Equal(t, 1, slot.Available())

	f.store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	slot, err = f.store.GetSlot(ctx, f.machine.ID, f.pads.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, slot.Reserved)
	assert.Equal(t, 5, slot.Available())
}

func TestDecrementShortageNamesSlotAndStock(t *testing.T) {
	f := newFixture(t)

	err := f.store.Decrement(context.Background(), nil, f.machine.ID, f.liners.ID, 2)
	var shortage *ShortageError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, f.liners.ID, shortage.ProductID)
	assert.Equal(t, "A2", shortage.SlotNumber)
	assert.Equal(t, 2, shortage.Requested)
	assert.Equal(t, 1, shortage.Available)
	assert.Equal(t, "insufficient stock in slot A2: requested 2, available 1", shortage.Error())

	err = f.store.Decrement(context.Background(), nil, f.machine.ID, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}
