package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
)

type mockStore struct {
	mu     sync.Mutex
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string {
	return "tc:session:access:" + accessID
}

func newManager(t *testing.T, store *mockStore) *Manager {
	t.Helper()
	m, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 15})
	require.NoError(t, err)
	return m
}

func TestSessionLifecycle(t *testing.T) {
	store := newMockStore()
	m := newManager(t, store)
	ctx := context.Background()
	accessID, userID := NewAccessID(), uuid.New()

	require.NoError(t, m.Generate(ctx, accessID, userID))
	require.Equal(t, 15*time.Minute, store.ttls["tc:session:access:"+accessID])

	ok, err := m.Active(ctx, accessID, userID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Revoke(ctx, accessID))
	ok, err = m.Active(ctx, accessID, userID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Revoke(ctx, accessID))
}

func TestActiveRejectsForeignOwner(t *testing.T) {
	m := newManager(t, newMockStore())
	accessID := NewAccessID()
	require.NoError(t, m.Generate(context.Background(), accessID, uuid.New()))

	ok, err := m.Active(context.Background(), accessID, uuid.New())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestActiveSurfacesStoreErrors(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("i/o timeout")
	m := newManager(t, store)

	_, err := m.Active(context.Background(), "jti", uuid.New())
	require.ErrorIs(t, err, store.getErr)
}

func TestValidation(t *testing.T) {
	m := newManager(t, newMockStore())
	ctx := context.Background()

	require.ErrorIs(t, m.Generate(ctx, " ", uuid.New()), errAccessIDRequired)
	require.Error(t, m.Generate(ctx, "abc", uuid.Nil))
	_, err := m.Active(ctx, "", uuid.New())
	require.ErrorIs(t, err, errAccessIDRequired)

	_, err = NewManager(nil, config.JWTConfig{ExpirationMinutes: 1})
	require.Error(t, err)
	_, err = NewManager(newMockStore(), config.JWTConfig{})
	require.Error(t, err)
}
