// Package idempotency deduplicates inbound deliveries (payment broker
// callbacks) with a two-phase Redis marker: a short-lived "pending" claim
// while the delivery is handled, then a long-lived "done" record.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	markerPending = "pending"
	markerDone    = "done"

	// DefaultClaimTTL bounds how long a crashed handler can block redelivery.
	DefaultClaimTTL = 2 * time.Minute
)

// Status is the outcome of Begin.
type Status int

const (
	// Claimed means the caller owns the delivery and must Complete or Release it.
	Claimed Status = iota
	// InFlight means another handler holds the claim.
	InFlight
	// Done means the delivery was already handled.
	Done
)

func (s Status) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case InFlight:
		return "in_flight"
	case Done:
		return "done"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Store is the Redis surface the guard needs. *redis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager tracks deliveries per consumer.
// Keys follow `vc:idempotency:evt:<consumer>:<delivery_id>`.
type Manager struct {
	store    Store
	doneTTL  time.Duration
	claimTTL time.Duration
}

// NewManager remembers finished deliveries for doneTTL.
func NewManager(store Store, doneTTL time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if doneTTL < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, doneTTL: doneTTL, claimTTL: DefaultClaimTTL}, nil
}

// Begin claims a delivery. Only a Claimed result lets the caller proceed.
func (m *Manager) Begin(ctx context.Context, consumer, deliveryID string) (Status, error) {
	key, err := m.key(consumer, deliveryID)
	if err != nil {
		return 0, err
	}
	claimed, err := m.store.SetNX(ctx, key, markerPending, m.claimTTL)
	if err != nil {
		return 0, err
	}
	if claimed {
		return Claimed, nil
	}
	current, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// the claim expired between the two calls; let the sender retry
		return InFlight, nil
	case err != nil:
		return 0, err
	case current == markerDone:
		return Done, nil
	}
	return InFlight, nil
}

// Complete records the delivery as handled.
func (m *Manager) Complete(ctx context.Context, consumer, deliveryID string) error {
	key, err := m.key(consumer, deliveryID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.doneTTL)
}

// Release drops the claim so a redelivery is handled again.
func (m *Manager) Release(ctx context.Context, consumer, deliveryID string) error {
	key, err := m.key(consumer, deliveryID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, deliveryID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return "", errors.New("delivery id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, deliveryID), nil
}
