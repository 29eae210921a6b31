package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CartStore persists carts between requests, keyed by buyer and machine.
type CartStore interface {
	Load(ctx context.Context, ownerID, machineCode string) (*Cart, error)
	Save(ctx context.Context, ownerID string, cart *Cart) error
	Delete(ctx context.Context, ownerID, machineCode string) error
}

type keyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(sessionID, machineCode string) string
}

// RedisCartStore keeps carts as JSON under cart keys with a sliding TTL.
type RedisCartStore struct {
	kv  keyValueStore
	ttl time.Duration
}

func NewRedisCartStore(kv keyValueStore, ttl time.Duration) *RedisCartStore {
	return &RedisCartStore{kv: kv, ttl: ttl}
}

// Load returns the stored cart or an empty one when nothing is stored.
func (s *RedisCartStore) Load(ctx context.Context, ownerID, machineCode string) (*Cart, error) {
	raw, err := s.kv.Get(ctx, s.kv.CartKey(ownerID, machineCode))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return NewCart(machineCode), nil
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []CartItem{}
	}
	cart.MachineCode = machineCode
	return &cart, nil
}

func (s *RedisCartStore) Save(ctx context.Context, ownerID string, cart *Cart) error {
	if cart == nil {
		return errors.New("cart is required")
	}
	cart.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return s.kv.Set(ctx, s.kv.CartKey(ownerID, cart.MachineCode), string(payload), s.ttl)
}

func (s *RedisCartStore) Delete(ctx context.Context, ownerID, machineCode string) error {
	return s.kv.Del(ctx, s.kv.CartKey(ownerID, machineCode))
}
