package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mesa-backend/pkg/redis"
)

// Guard remembers which outbox events a publisher already handed to Pub/Sub.
// A row whose publish succeeded but whose published_at update was rolled back
// is then marked published on the next pass instead of being sent twice.
// Keys follow the `mesa:idempotency:evt:<scope>:<name>:<event_id>` pattern, with
// scope "published" unless WithScope says otherwise.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewGuard builds a guard whose marks expire after ttl.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Guard{store: store, ttl: ttl, scope: ScopePublished}, nil
}

const (
	ScopePublished = "published"
	ScopeConsumed  = "consumed"
)

// WithScope returns a guard sharing the store and ttl whose marks live under
// scope. Consumers use ScopeConsumed so their marks never collide with the
// publisher's.
func (g *Guard) WithScope(scope string) *Guard {
	cp := *g
	if scope != "" {
		cp.scope = scope
	}
	return &cp
}

// Claim marks eventID as sent by publisher. It reports false when an earlier
// claim is still live.
func (g *Guard) Claim(ctx context.Context, publisher string, eventID uuid.UUID) (bool, error) {
	key, err := g.key(publisher, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops a claim after a failed publish so the retry is not skipped.
func (g *Guard) Release(ctx context.Context, publisher string, eventID uuid.UUID) error {
	key, err := g.key(publisher, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(publisher string, eventID uuid.UUID) (string, error) {
	if publisher == "" {
		return "", errors.New("publisher name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("evt:%s:%s", g.scope, publisher), eventID.String()), nil
}
