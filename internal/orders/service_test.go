package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vendcare-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/pagination"
)

func TestDetailComputesExpiryOnServer(t *testing.T) {
	f := newRepoFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	order := dbtest.MustCreatePaidOrder(t, f.db, f.userID, f.machine, f.product, "LIVE01", now.Add(90*time.Second+400*time.Millisecond))

	svc, err := NewService(f.repo)
	require.NoError(t, err)
	svc.(*service).now = func() time.Time { return now }

	detail, err := svc.Detail(context.Background(), f.userID, order.ID)
	require.NoError(t, err)
	assert.False(t, detail.IsExpired)
	assert.Equal(t, 90, detail.SecondsRemaining)
	assert.Equal(t, "VM100", detail.Machine.MachineCode)
	require.Len(t, detail.Items, 1)

	svc.(*service).now = func() time.Time { return now.Add(2 * time.Minute) }
	detail, err = svc.Detail(context.Background(), f.userID, order.ID)
	require.NoError(t, err)
	assert.True(t, detail.IsExpired)
	assert.Zero(t, detail.SecondsRemaining)

	_, err = svc.Detail(context.Background(), uuid.New(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDetailOfDispensedOrderIsNotExpired(t *testing.T) {
	f := newRepoFixture(t)
	order := dbtest.MustCreatePaidOrder(t, f.db, f.userID, f.machine, f.product, "DONE01", time.Now().Add(-time.Hour))
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusDispensed).Error)

	svc, err := NewService(f.repo)
	require.NoError(t, err)
	detail, err := svc.Detail(context.Background(), f.userID, order.ID)
	require.NoError(t, err)
	assert.False(t, detail.IsExpired)
	assert.Zero(t, detail.SecondsRemaining)
}

func TestListValidatesInput(t *testing.T) {
	f := newRepoFixture(t)
	svc, err := NewService(f.repo)
	require.NoError(t, err)

	_, err = svc.List(context.Background(), f.userID, []enums.OrderStatus{"lost"}, pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(context.Background(), f.userID, nil, pagination.Params{Cursor: "not a cursor"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	dbtest.MustCreatePaidOrder(t, f.db, f.userID, f.machine, f.product, "LIST01", time.Now().Add(time.Minute))
	list, err := svc.List(context.Background(), f.userID, []enums.OrderStatus{enums.OrderStatusPaid}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, list.Orders, 1)
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)
}
