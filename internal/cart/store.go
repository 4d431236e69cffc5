package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mesa-backend/pkg/redis"
)

var (
	// ErrNotFound is returned for unknown or expired carts.
	ErrNotFound = errors.New("cart not found")
	// ErrBusy is returned when another writer holds the cart lock too long.
	ErrBusy = errors.New("cart is being updated")
)

const (
	lockTTL      = 5 * time.Second
	lockWait     = 2 * time.Second
	lockPollStep = 25 * time.Millisecond
)

// Store owns cart values for their lifetime.
type Store interface {
	Create(ctx context.Context, c *Cart) error
	Load(ctx context.Context, id uuid.UUID) (*Cart, error)
	// Update runs fn on the current value and saves the result. Writers to
	// the same cart are serialized.
	Update(ctx context.Context, id uuid.UUID, fn func(*Cart) error) (*Cart, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	CartKey(cartID string) string
	LockKey(parts ...string) string
}

// RedisStore keeps each cart as a JSON value with a sliding TTL.
type RedisStore struct {
	kv  kvStore
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(kv kvStore, ttl time.Duration) (*RedisStore, error) {
	if kv == nil {
		return nil, errors.New("redis client required")
	}
	if ttl <= 0 {
		return nil, errors.New("cart ttl must be positive")
	}
	return &RedisStore{kv: kv, ttl: ttl, now: time.Now}, nil
}

func (s *RedisStore) Create(ctx context.Context, c *Cart) error {
	if c == nil || c.ID == uuid.Nil {
		return errors.New("cart with id required")
	}
	return s.save(ctx, c)
}

func (s *RedisStore) Load(ctx context.Context, id uuid.UUID) (*Cart, error) {
	raw, err := s.kv.Get(ctx, s.kv.CartKey(id.String()))
	if err != nil {
		if redis.IsNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return &c, nil
}

func (s *RedisStore) Update(ctx context.Context, id uuid.UUID, fn func(*Cart) error) (*Cart, error) {
	lock, err := redis.NewLock(s.kv, s.kv.LockKey("cart", id.String()), lockTTL)
	if err != nil {
		return nil, err
	}
	if err := lock.AcquireWithin(ctx, lockWait, lockPollStep); err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()

	c, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.kv.Del(ctx, s.kv.CartKey(id.String()))
}

func (s *RedisStore) save(ctx context.Context, c *Cart) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.kv.Set(ctx, s.kv.CartKey(c.ID.String()), payload, s.ttl); err != nil {
		return fmt.Errorf("write cart: %w", err)
	}
	return nil
}
