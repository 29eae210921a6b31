package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/vendcare-backend/internal/gateway"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
)

type fakeGateway struct {
	mu          sync.Mutex
	createErr   error
	status      *gateway.Status
	statusErr   error
	intents     []gateway.OrderIntent
	statusCalls int
}

func (g *fakeGateway) CreatePaymentSession(_ context.Context, intent gateway.OrderIntent) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents = append(g.intents, intent)
	if g.createErr != nil {
		return nil, g.createErr
	}
	n := len(g.intents)
	return &gateway.Session{
		MerchantOrderID: fmt.Sprintf("MO-%d", n),
		ProviderOrderID: fmt.Sprintf("OMO-%d", n),
		RedirectURL:     fmt.Sprintf("https://pay.test/checkout/%d", n),
		Status:          "PENDING",
	}, nil
}

func (g *fakeGateway) CheckPaymentStatus(_ context.Context, merchantOrderID string) (*gateway.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if g.status == nil {
		return &gateway.Status{MerchantOrderID: merchantOrderID, Status: enums.PaymentStatusPending}, nil
	}
	status := *g.status
	status.MerchantOrderID = merchantOrderID
	return &status, nil
}

func (g *fakeGateway) setStatus(status enums.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusErr = nil
	g.status = &gateway.Status{Status: status, TransactionID: "TXN-1"}
}

// memoryKV stands in for the redis client as cart store backend and finalize guard.
type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string]string{}}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryKV) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memoryKV) CartKey(sessionID, machineCode string) string {
	return "cart:" + sessionID + ":" + machineCode
}

func (m *memoryKV) FinalizeKey(paymentRef string) string {
	return "finalize:" + paymentRef
}
