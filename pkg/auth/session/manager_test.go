package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/mesa-backend/pkg/enums"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return fmt.Sprintf("sess:%s", accessID)
}

func TestManagerGenerateAndRotate(t *testing.T) {
	store := newMockStore()
	manager := newManager(store, store, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	accessID := "access-123"
	token, err := manager.Generate(ctx, accessID, userID, enums.UserRoleCustomer)
	require.NoError(t, err)

	stored := store.data[store.AccessSessionKey(accessID)]
	require.NotContains(t, stored, token, "raw refresh token must not be persisted")

	_, _, _, err = manager.Rotate(ctx, accessID, "wrong")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	newAccessID, newToken, sess, err := manager.Rotate(ctx, accessID, token)
	require.NoError(t, err)
	require.Equal(t, userID, sess.UserID)
	require.Equal(t, enums.UserRoleCustomer, sess.Role)
	require.NotEqual(t, token, newToken)

	_, exists := store.data[store.AccessSessionKey(accessID)]
	require.False(t, exists, "old access key left behind")

	ok, err := manager.HasSession(ctx, newAccessID)
	require.NoError(t, err)
	require.True(t, ok)

	// the old refresh token is single use
	_, _, _, err = manager.Rotate(ctx, accessID, token)
	require.True(t, errors.Is(err, ErrInvalidRefreshToken))
}

func TestManagerRevoke(t *testing.T) {
	store := newMockStore()
	manager := newManager(store, store, time.Hour)
	ctx := context.Background()

	_, err := manager.Generate(ctx, "a1", uuid.New(), enums.UserRoleAdmin)
	require.NoError(t, err)
	require.NoError(t, manager.Revoke(ctx, "a1"))

	ok, err := manager.HasSession(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, manager.Revoke(ctx, " "))
}

func TestManagerGenerateValidation(t *testing.T) {
	store := newMockStore()
	manager := newManager(store, store, time.Hour)

	_, err := manager.Generate(context.Background(), "", uuid.New(), enums.UserRoleCustomer)
	require.Error(t, err)
	_, err = manager.Generate(context.Background(), "a1", uuid.Nil, enums.UserRoleCustomer)
	require.Error(t, err)
}

func TestManagerRotateCorruptRecord(t *testing.T) {
	store := newMockStore()
	manager := newManager(store, store, time.Hour)
	store.data[store.AccessSessionKey("a1")] = "not-json"

	_, _, _, err := manager.Rotate(context.Background(), "a1", "whatever")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}
