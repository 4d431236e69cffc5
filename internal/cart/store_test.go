package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.data[key] = toString(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = toString(value)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeKV) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok && v == expected {
		delete(f.data, key)
		return true, nil
	}
	return false, nil
}

func (f *fakeKV) CartKey(id string) string { return "mesa:cart:" + id }

func (f *fakeKV) LockKey(parts ...string) string { return "mesa:lock:" + strings.Join(parts, ":") }

func toString(value any) string {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		panic("unexpected value type")
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	kv := newFakeKV()
	store, err := NewRedisStore(kv, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	c := New(nil, time.Now().UTC())
	c.AddItem(line("12.50"), 2)
	require.NoError(t, store.Create(ctx, c))
	assert.Equal(t, time.Hour, kv.ttls[kv.CartKey(c.ID.String())])

	loaded, err := store.Load(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.True(t, dec("25").Equal(loaded.Totals.Total))

	updated, err := store.Update(ctx, c.ID, func(c *Cart) error {
		c.SetQuantity(c.Items[0].MenuItemID, 0)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, updated.Items)

	_, held := kv.data[kv.LockKey("cart", c.ID.String())]
	assert.False(t, held, "lock released after update")

	require.NoError(t, store.Delete(ctx, c.ID))
	_, err = store.Load(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreUpdateErrors(t *testing.T) {
	kv := newFakeKV()
	store, err := NewRedisStore(kv, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Update(ctx, uuid.New(), func(*Cart) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)

	c := New(nil, time.Now())
	require.NoError(t, store.Create(ctx, c))
	boom := errors.New("boom")
	_, err = store.Update(ctx, c.ID, func(*Cart) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRedisStoreUpdateWaitsForLock(t *testing.T) {
	kv := newFakeKV()
	store, err := NewRedisStore(kv, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	c := New(nil, time.Now())
	require.NoError(t, store.Create(ctx, c))
	item := line("4")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, c.ID, func(c *Cart) error {
				c.AddItem(item, 1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loaded, err := store.Load(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 5, loaded.Items[0].Quantity)
}

func TestRedisStoreBusyLock(t *testing.T) {
	kv := newFakeKV()
	store, err := NewRedisStore(kv, time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := New(nil, time.Now())
	require.NoError(t, store.Create(ctx, c))
	kv.data[kv.LockKey("cart", c.ID.String())] = "someone-else"

	_, err = store.Update(ctx, c.ID, func(*Cart) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRedisStoreValidation(t *testing.T) {
	_, err := NewRedisStore(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewRedisStore(newFakeKV(), 0)
	assert.Error(t, err)
}
