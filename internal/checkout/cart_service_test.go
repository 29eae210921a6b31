package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vendcare-backend/internal/inventory"
	"github.com/angelmondragon/vendcare-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

type machineMap map[string]*models.VendingMachine

func (m machineMap) Lookup(_ context.Context, code string) (*models.VendingMachine, error) {
	machine, ok := m[code]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "machine not found")
	}
	return machine, nil
}

func TestCartServiceAddUpdateRemove(t *testing.T) {
	conn := dbtest.Open(t)
	machine := dbtest.MustCreateMachine(t, conn, "VM001")
	pads := dbtest.MustCreateProduct(t, conn, "Organic pads", "4.50")
	cups := dbtest.MustCreateProduct(t, conn, "Menstrual cup", "12.00")
	dbtest.MustCreateSlot(t, conn, machine.ID, pads.ID, "A1", 3, 10)
	dbtest.MustCreateSlot(t, conn, machine.ID, cups.ID, "B1", 1, 4)

	kv := newMemoryKV()
	svc, err := NewCartService(NewRedisCartStore(kv, time.Hour), machineMap{"VM001": machine}, inventory.NewStore(conn))
	require.NoError(t, err)
	ctx := context.Background()
	userID := uuid.New()

	view, err := svc.AddItem(ctx, userID, "VM001", pads.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, view.ItemCount)
	assert.Equal(t, "9.00", view.Total.StringFixed(2))
	require.Len(t, view.Items, 1)
	assert.Equal(t, "A1", view.Items[0].SlotNumber)
	assert.True(t, kv.has("cart:"+userID.String()+":VM001"))

	_, err = svc.AddItem(ctx, userID, "VM001", pads.ID, 2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	view, err = svc.AddItem(ctx, userID, "VM001", cups.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, view.ItemCount)
	assert.Equal(t, "21.00", view.Total.StringFixed(2))

	_, err = svc.UpdateItem(ctx, userID, "VM001", cups.ID, 2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	view, err = svc.UpdateItem(ctx, userID, "VM001", pads.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, view.ItemCount)

	view, err = svc.RemoveItem(ctx, userID, "VM001", cups.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, view.ItemCount)
	assert.Equal(t, "13.50", view.Total.StringFixed(2))

	session, err := svc.Session(ctx, userID, "VM001")
	require.NoError(t, err)
	assert.Equal(t, machine.ID, session.Machine.ID)
	assert.NoError(t, session.validate())

	require.NoError(t, svc.Clear(ctx, userID, "VM001"))
	view, err = svc.Get(ctx, userID, "VM001")
	require.NoError(t, err)
	assert.Zero(t, view.ItemCount)
}

func TestCartServiceRejects(t *testing.T) {
	conn := dbtest.Open(t)
	machine := dbtest.MustCreateMachine(t, conn, "VM001")
	pads := dbtest.MustCreateProduct(t, conn, "Organic pads", "4.50")
	dbtest.MustCreateSlot(t, conn, machine.ID, pads.ID, "A1", 3, 10)
	offline := *machine
	offline.MachineCode = "VM002"
	offline.Status = enums.MachineStatusOffline

	svc, err := NewCartService(NewRedisCartStore(newMemoryKV(), time.Hour), machineMap{"VM001": machine, "VM002": &offline}, inventory.NewStore(conn))
	require.NoError(t, err)
	ctx := context.Background()
	userID := uuid.New()

	_, err = svc.AddItem(ctx, userID, "VM404", pads.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.AddItem(ctx, userID, "VM002", pads.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.AddItem(ctx, userID, "VM001", uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.AddItem(ctx, userID, "VM001", pads.ID, 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.AddItem(ctx, uuid.Nil, "VM001", pads.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = svc.UpdateItem(ctx, userID, "VM001", pads.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCartServiceSessionRepricesFromCatalog(t *testing.T) {
	conn := dbtest.Open(t)
	machine := dbtest.MustCreateMachine(t, conn, "VM001")
	pads := dbtest.MustCreateProduct(t, conn, "Organic pads", "4.50")
	cups := dbtest.MustCreateProduct(t, conn, "Menstrual cup", "12.00")
	dbtest.MustCreateSlot(t, conn, machine.ID, pads.ID, "A1", 3, 10)
	dbtest.MustCreateSlot(t, conn, machine.ID, cups.ID, "B1", 2, 4)

	kv := newMemoryKV()
	carts := NewRedisCartStore(kv, time.Hour)
	svc, err := NewCartService(carts, machineMap{"VM001": machine}, inventory.NewStore(conn))
	require.NoError(t, err)
	ctx := context.Background()
	userID := uuid.New()

	_, err = svc.AddItem(ctx, userID, "VM001", pads.ID, 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, userID, "VM001", cups.ID, 1)
	require.NoError(t, err)

	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", pads.ID).
		Update("price", decimal.RequireFromString("5.25")).Error)

	session, err := svc.Session(ctx, userID, "VM001")
	require.NoError(t, err)
	line, ok := session.Cart.Find(pads.ID)
	require.True(t, ok)
	assert.Equal(t, "5.25", line.UnitPrice.StringFixed(2))
	assert.Equal(t, "22.50", session.Cart.Total().StringFixed(2))

	stored, err := carts.Load(ctx, userID.String(), "VM001")
	require.NoError(t, err)
	line, _ = stored.Find(pads.ID)
	assert.Equal(t, "5.25", line.UnitPrice.StringFixed(2))

	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", cups.ID).Update("is_active", false).Error)
	_, err = svc.Session(ctx, userID, "VM001")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
