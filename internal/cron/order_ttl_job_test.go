package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vendcare-backend/internal/inventory"
	"github.com/angelmondragon/vendcare-backend/pkg/db"
	"github.com/angelmondragon/vendcare-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	"github.com/angelmondragon/vendcare-backend/pkg/logger"
)

type fakeExpirer struct {
	n     int
	err   error
	limit int
}

func (f *fakeExpirer) ExpireOverdue(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return f.n, f.err
}

func (f *fakeExpirer) ExpireStale(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return f.n, f.err
}

func TestOrderTTLJobUsesBatchSize(t *testing.T) {
	expirer := &fakeExpirer{n: 3}
	job, err := NewOrderTTLJob(OrderTTLJobParams{Logger: logger.Nop(), Dispensing: expirer, BatchSize: 25})
	require.NoError(t, err)
	assert.Equal(t, "order-ttl", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 25, expirer.limit)
}

func TestOrderTTLJobReportsPartialFailure(t *testing.T) {
	expirer := &fakeExpirer{n: 1, err: errors.New("expire order x: boom")}
	job, err := NewOrderTTLJob(OrderTTLJobParams{Logger: logger.Nop(), Dispensing: expirer})
	require.NoError(t, err)
	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, defaultBatchSize, expirer.limit)
}

func TestCheckoutExpiryJob(t *testing.T) {
	_, err := NewCheckoutExpiryJob(CheckoutExpiryJobParams{Logger: logger.Nop()})
	assert.Error(t, err)

	expirer := &fakeExpirer{n: 2}
	job, err := NewCheckoutExpiryJob(CheckoutExpiryJobParams{Logger: logger.Nop(), Checkout: expirer, BatchSize: 10})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 10, expirer.limit)

	expirer.err = errors.New("boom")
	assert.Error(t, job.Run(context.Background()))
}

func TestHoldReleaseJobReleasesLapsedHolds(t *testing.T) {
	conn := dbtest.Open(t)
	machine := dbtest.MustCreateMachine(t, conn, "VM001")
	product := dbtest.MustCreateProduct(t, conn, "Organic pads", "4.50")
	dbtest.MustCreateSlot(t, conn, machine.ID, product.ID, "A1", 5, 10)

	now := time.Now().UTC()
	lapsed := holdRow(machine.ID, product.ID, now.Add(-time.Minute))
	live := holdRow(machine.ID, product.ID, now.Add(time.Hour))
	require.NoError(t, conn.Create(&[]models.InventoryHold{lapsed, live}).Error)

	job, err := NewHoldReleaseJob(HoldReleaseJobParams{
		Logger: logger.Nop(),
		DB:     db.NewFromGorm(conn),
		Holds:  inventory.NewStore(conn),
	})
	require.NoError(t, err)
	job.(*holdReleaseJob).now = func() time.Time { return now }
	require.NoError(t, job.Run(context.Background()))

	var rows []models.InventoryHold
	require.NoError(t, conn.Order("expires_at ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.HoldStatusReleased, rows[0].Status)
	assert.Equal(t, enums.HoldStatusReserved, rows[1].Status)
}

func holdRow(machineID, productID uuid.UUID, expiresAt time.Time) models.InventoryHold {
	return models.InventoryHold{
		ID:                uuid.New(),
		CheckoutSessionID: uuid.New(),
		MachineID:         machineID,
		ProductID:         productID,
		SlotNumber:        "A1",
		Quantity:          1,
		Status:            enums.HoldStatusReserved,
		ExpiresAt:         expiresAt,
		CreatedAt:         expiresAt,
		UpdatedAt:         expiresAt,
	}
}
