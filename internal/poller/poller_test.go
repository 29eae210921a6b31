package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vendcare-backend/internal/gateway"
	"github.com/angelmondragon/vendcare-backend/internal/orders"
	"github.com/angelmondragon/vendcare-backend/pkg/config"
	"github.com/angelmondragon/vendcare-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
	"github.com/angelmondragon/vendcare-backend/pkg/metrics"
)

type step struct {
	status enums.OrderStatus
	err    error
}

type scriptedSource struct {
	mu        sync.Mutex
	steps     []step
	calls     int
	expiresAt time.Time
}

func (s *scriptedSource) Name() string { return "script" }

func (s *scriptedSource) Fetch(_ context.Context, orderID uuid.UUID) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	s.calls++
	st := s.steps[idx]
	if st.err != nil {
		return nil, st.err
	}
	return &Snapshot{OrderID: orderID, Status: st.status, DispensingCodeExpiresAt: s.expiresAt}, nil
}

func (s *scriptedSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fetchCount(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "vendcare_order_poll_fetches_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRunStopsOnTerminalStatus(t *testing.T) {
	src := &scriptedSource{
		steps:     []step{{status: enums.OrderStatusPaid}, {err: errors.New("boom")}, {status: enums.OrderStatusDispensed}},
		expiresAt: time.Now().Add(time.Hour),
	}
	reg := prometheus.NewRegistry()
	m := metrics.NewPollerMetrics(reg)
	var updates []enums.OrderStatus
	var errs []error

	p, err := New(Params{
		Source:   src,
		OrderID:  uuid.New(),
		Interval: 5 * time.Millisecond,
		OnUpdate: func(s Snapshot) { updates = append(updates, s.Status) },
		OnError:  func(err error) { errs = append(errs, err) },
		Metrics:  m,
	})
	require.NoError(t, err)

	last, reason, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopTerminal, reason)
	require.NotNil(t, last)
	assert.Equal(t, enums.OrderStatusDispensed, last.Status)
	assert.Equal(t, []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusDispensed}, updates)
	assert.Len(t, errs, 1)
	assert.Equal(t, 3, src.count())
	assert.Equal(t, 2.0, fetchCount(t, reg, "ok"))
	assert.Equal(t, 1.0, fetchCount(t, reg, "error"))
}

func TestRunStopsWhenCodeExpires(t *testing.T) {
	src := &scriptedSource{
		steps:     []step{{status: enums.OrderStatusPaid}},
		expiresAt: time.Now().Add(-time.Second),
	}
	p, err := New(Params{Source: src, OrderID: uuid.New(), Interval: time.Hour})
	require.NoError(t, err)

	last, reason, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopExpired, reason)
	require.NotNil(t, last)
	assert.Equal(t, 1, src.count())

	src = &scriptedSource{steps: []step{{status: enums.OrderStatusExpired}}, expiresAt: time.Now()}
	p, err = New(Params{Source: src, OrderID: uuid.New(), Interval: time.Hour})
	require.NoError(t, err)
	_, reason, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopExpired, reason)
}

func TestRunStopsOnCancellationWithoutFurtherFetches(t *testing.T) {
	src := &scriptedSource{
		steps:     []step{{status: enums.OrderStatusPaid}},
		expiresAt: time.Now().Add(time.Hour),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := 0
	p, err := New(Params{
		Source:   src,
		OrderID:  uuid.New(),
		Interval: 5 * time.Millisecond,
		OnUpdate: func(Snapshot) {
			seen++
			if seen == 2 {
				cancel()
			}
		},
	})
	require.NoError(t, err)

	last, reason, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopCancelled, reason)
	require.NotNil(t, last)
	assert.Equal(t, 2, src.count())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, src.count())
}

func TestRunExpiresOnFetchErrorsPastDeadline(t *testing.T) {
	now := time.Now()
	reads := 0
	src := &scriptedSource{
		steps:     []step{{status: enums.OrderStatusPaid}, {err: errors.New("offline")}},
		expiresAt: now.Add(time.Minute),
	}
	p, err := New(Params{
		Source:   src,
		OrderID:  uuid.New(),
		Interval: 5 * time.Millisecond,
		Now: func() time.Time {
			reads++
			if reads == 1 {
				return now
			}
			return now.Add(2 * time.Minute)
		},
	})
	require.NoError(t, err)

	last, reason, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopExpired, reason)
	require.NotNil(t, last)
	assert.True(t, last.IsExpired)
	assert.Zero(t, last.SecondsRemaining)
}

func TestNewRequiresSourceAndOrder(t *testing.T) {
	_, err := New(Params{OrderID: uuid.New()})
	assert.Error(t, err)
	_, err = New(Params{Source: &scriptedSource{}})
	assert.Error(t, err)
}

func TestStoreSourceComputesExpiryOnServer(t *testing.T) {
	conn := dbtest.Open(t)
	machine := dbtest.MustCreateMachine(t, conn, "VM001")
	product := dbtest.MustCreateProduct(t, conn, "Organic pads", "4.50")
	userID := uuid.New()
	now := time.Now().UTC()
	order := dbtest.MustCreatePaidOrder(t, conn, userID, machine, product, "AB12CD", now.Add(90*time.Second))

	src := NewStoreSource(orders.NewRepository(conn), userID, func() time.Time { return now })
	snap, err := src.Fetch(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, snap.Status)
	assert.False(t, snap.IsExpired)
	assert.InDelta(t, 90, snap.SecondsRemaining, 1)

	late := NewStoreSource(orders.NewRepository(conn), userID, func() time.Time { return now.Add(2 * time.Minute) })
	snap, err = late.Fetch(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, snap.IsExpired)
	assert.Zero(t, snap.SecondsRemaining)

	stranger := NewStoreSource(orders.NewRepository(conn), uuid.New(), nil)
	_, err = stranger.Fetch(context.Background(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestHTTPSourceReadsOrderEnvelope(t *testing.T) {
	orderID := uuid.New()
	expires := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/orders/"+orderID.String(), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": gateway.OrderSnapshot{
			ID:                      orderID,
			OrderNumber:             "ORD-VM001-000001",
			Status:                  enums.OrderStatusPaid,
			DispensingCodeExpiresAt: expires,
			SecondsRemaining:        600,
		}})
	}))
	defer srv.Close()

	client := gateway.NewClient(config.GatewayConfig{BaseURL: srv.URL, Token: "tkn"})
	snap, err := NewHTTPSource(client).Fetch(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, orderID, snap.OrderID)
	assert.Equal(t, "ORD-VM001-000001", snap.OrderNumber)
	assert.Equal(t, 600, snap.SecondsRemaining)
	assert.True(t, expires.Equal(snap.DispensingCodeExpiresAt))
}
