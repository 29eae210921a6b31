package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

func reserve(t *testing.T, f fixture, sessionID uuid.UUID, lines []HoldRequest, ttl time.Duration) ([]models.InventoryHold, error) {
	t.Helper()
	var holds []models.InventoryHold
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		holds, err = f.store.Reserve(context.Background(), tx, sessionID, f.machine.ID, lines, ttl)
		return err
	})
	return holds, err
}

func TestReserveCreatesHolds(t *testing.T) {
	f := newFixture(t)
	sessionID := uuid.New()

	holds, err := reserve(t, f, sessionID, []HoldRequest{
		{ProductID: f.pads.ID, SlotNumber: "A1", Quantity: 2},
		{ProductID: f.liners.ID, Quantity: 1},
	}, 25*time.Minute)
	require.NoError(t, err)
	require.Len(t, holds, 2)
	assert.Equal(t, enums.HoldStatusReserved, holds[0].Status)
	assert.Equal(t, "A2", holds[1].SlotNumber)

	stored, err := f.store.HoldsForSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestReserveRejectsOversubscription(t *testing.T) {
	f := newFixture(t)

	_, err := reserve(t, f, uuid.New(), []HoldRequest{{ProductID: f.pads.ID, Quantity: 4}}, time.Minute)
	require.NoError(t, err)

	_, err = reserve(t, f, uuid.New(), []HoldRequest{{ProductID: f.pads.ID, Quantity: 2}}, time.Minute)
	require.Error(t, err)
	var shortage *ShortageError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, 1, shortage.Available)
	assert.Equal(t, "A1", shortage.SlotNumber)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestReserveCountsDuplicateLinesTogether(t *testing.T) {
	f := newFixture(t)

	_, err := reserve(t, f, uuid.New(), []HoldRequest{
		{ProductID: f.liners.ID, Quantity: 1},
		{ProductID: f.liners.ID, Quantity: 1},
	}, time.Minute)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	holds, err := f.store.HoldsForSession(context.Background(), uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, holds)
}

func TestReserveValidation(t *testing.T) {
	f := newFixture(t)

	_, err := reserve(t, f, uuid.New(), nil, time.Minute)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = reserve(t, f, uuid.New(), []HoldRequest{{ProductID: f.pads.ID, Quantity: 0}}, time.Minute)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = reserve(t, f, uuid.New(), []HoldRequest{{ProductID: uuid.New(), Quantity: 1}}, time.Minute)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = reserve(t, f, uuid.New(), []HoldRequest{{ProductID: f.pads.ID, SlotNumber: "B9", Quantity: 1}}, time.Minute)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCommitAndReleaseAreTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	committedSession := uuid.New()
	releasedSession := uuid.New()

	_, err := reserve(t, f, committedSession, []HoldRequest{{ProductID: f.pads.ID, Quantity: 2}}, time.Minute)
	require.NoError(t, err)
	_, err = reserve(t, f, releasedSession, []HoldRequest{{ProductID: f.pads.ID, Quantity: 1}}, time.Minute)
	require.NoError(t, err)

	var committed []models.InventoryHold
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		committed, err = f.store.Commit(ctx, tx, committedSession)
		return err
	}))
	require.Len(t, committed, 1)
	assert.Equal(t, enums.HoldStatusCommitted, committed[0].Status)

	n, err := f.store.Release(ctx, nil, committedSession)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.store.Release(ctx, nil, releasedSession)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		committed, err = f.store.Commit(ctx, tx, releasedSession)
		return err
	}))
	assert.Empty(t, committed)

	holds, err := f.store.HoldsForSession(ctx, releasedSession)
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusReleased, holds[0].Status)
}

func TestReleaseExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expiredSession := uuid.New()
	liveSession := uuid.New()
	_, err := reserve(t, f, expiredSession, []HoldRequest{{ProductID: f.pads.ID, Quantity: 1}}, time.Minute)
	require.NoError(t, err)
	_, err = reserve(t, f, liveSession, []HoldRequest{{ProductID: f.pads.ID, Quantity: 1}}, time.Hour)
	require.NoError(t, err)

	n, err := f.store.ReleaseExpired(ctx, nil, time.Now().Add(10*time.Minute), 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	holds, err := f.store.HoldsForSession(ctx, expiredSession)
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusReleased, holds[0].Status)

	holds, err = f.store.HoldsForSession(ctx, liveSession)
	require.NoError(t, err)
	assert.Equal(t, enums.HoldStatusReserved, holds[0].Status)
}

// reserveConcurrently starts one reservation per cart at the same time, each in its own
// transaction, and returns how many succeeded. Every failure must be a stock shortage.
func reserveConcurrently(t *testing.T, db *gorm.DB, store *Store, machineID uuid.UUID, sessions []uuid.UUID, carts [][]HoldRequest) int {
	t.Helper()
	start := make(chan struct{})
	errs := make([]error, len(carts))
	var wg sync.WaitGroup
	for i := range carts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = db.Transaction(func(tx *gorm.DB) error {
				_, err := store.Reserve(context.Background(), tx, sessions[i], machineID, carts[i], time.Minute)
				return err
			})
		}(i)
	}
	close(start)
	wg.Wait()

	won := 0
	for i, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientStock, "cart %d", i)
	}
	return won
}

func reservedTotal(t *testing.T, db *gorm.DB, machineID, productID uuid.UUID) int {
	t.Helper()
	var total int
	require.NoError(t, db.Model(&models.InventoryHold{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("machine_id = ? AND product_id = ? AND status = ?", machineID, productID, enums.HoldStatusReserved).
		Scan(&total).Error)
	return total
}

func TestConcurrentReservationsForLastUnit(t *testing.T) {
	f := newFixture(t)

	sessions := []uuid.UUID{uuid.New(), uuid.New()}
	carts := [][]HoldRequest{
		{{ProductID: f.liners.ID, Quantity: 1}},
		{{ProductID: f.liners.ID, Quantity: 1}},
	}
	assert.Equal(t, 1, reserveConcurrently(t, f.db, f.store, f.machine.ID, sessions, carts))
	assert.Equal(t, 1, reservedTotal(t, f.db, f.machine.ID, f.liners.ID))
}

func TestLockOrderIsStableAcrossCarts(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	forward := lockOrder([]HoldRequest{{ProductID: a}, {ProductID: b}, {ProductID: a}})
	backward := lockOrder([]HoldRequest{{ProductID: b}, {ProductID: a}})
	assert.Equal(t, forward, backward)
	assert.Len(t, forward, 2)
}

func mustCreateSession(t *testing.T, db *gorm.DB, machine *models.VendingMachine) uuid.UUID {
	t.Helper()
	session := &models.CheckoutSession{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		MachineID:     machine.ID,
		MachineCode:   machine.MachineCode,
		OrderNumber:   "ORD-" + machine.MachineCode,
		TotalAmount:   decimal.RequireFromString("2.25"),
		Status:        enums.CheckoutStatusPending,
		Cart:          models.CartLines{},
		HoldExpiresAt: time.Now().Add(time.Minute).UTC(),
	}
	require.NoError(t, db.Create(session).Error)
	return session.ID
}

// Runs against postgres, where slot rows are locked with FOR UPDATE and buyers really
// overlap. Carts list the same two products in opposite orders.
func TestConcurrentReservationsSerializeOnPostgres(t *testing.T) {
	db := dbtest.OpenPostgres(t)
	machine := dbtest.MustCreateMachine(t, db, "PG-"+uuid.NewString()[:8])
	pads := dbtest.MustCreateProduct(t, db, "Organic pads", "4.50")
	liners := dbtest.MustCreateProduct(t, db, "Panty liners", "2.25")
	dbtest.MustCreateSlot(t, db, machine.ID, pads.ID, "A1", 10, 10)
	dbtest.MustCreateSlot(t, db, machine.ID, liners.ID, "A2", 1, 8)
	store := NewStore(db)

	const buyers = 8
	sessions := make([]uuid.UUID, buyers)
	carts := make([][]HoldRequest, buyers)
	for i := range carts {
		sessions[i] = mustCreateSession(t, db, machine)
		carts[i] = []HoldRequest{{ProductID: pads.ID, Quantity: 1}, {ProductID: liners.ID, Quantity: 1}}
		if i%2 == 1 {
			carts[i][0], carts[i][1] = carts[i][1], carts[i][0]
		}
	}

	assert.Equal(t, 1, reserveConcurrently(t, db, store, machine.ID, sessions, carts))
	assert.Equal(t, 1, reservedTotal(t, db, machine.ID, liners.ID))
	assert.Equal(t, 1, reservedTotal(t, db, machine.ID, pads.ID))
}
