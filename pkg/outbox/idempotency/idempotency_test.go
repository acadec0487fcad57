package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	keys    map[string]time.Duration
	setErr  error
	delErr  error
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{keys: map[string]time.Duration{}}
}

func (m *memStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	for _, k := range keys {
		delete(m.keys, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "tc:idempotency:" + scope + ":" + id
}

func TestOnceRunsHandlerOnce(t *testing.T) {
	store := newMemStore()
	guard, err := NewGuard(store, "stripe-webhook", time.Hour)
	require.NoError(t, err)

	calls := 0
	handle := func(context.Context) error { calls++; return nil }

	require.NoError(t, guard.Once(context.Background(), "evt_123", handle))
	require.ErrorIs(t, guard.Once(context.Background(), "evt_123", handle), ErrDuplicate)
	require.Equal(t, 1, calls)
	require.Equal(t, time.Hour, store.keys["tc:idempotency:evt:stripe-webhook:evt_123"])
}

func TestOnceReleasesClaimOnFailure(t *testing.T) {
	store := newMemStore()
	guard, err := NewGuard(store, "notifications-worker", time.Hour)
	require.NoError(t, err)
	boom := errors.New("insert failed")

	err = guard.Once(context.Background(), "f47ac10b", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"tc:idempotency:evt:notifications-worker:f47ac10b"}, store.deleted)

	require.NoError(t, guard.Once(context.Background(), "f47ac10b", func(context.Context) error { return nil }))
}

func TestOnceReportsReleaseFailure(t *testing.T) {
	store := newMemStore()
	store.delErr = errors.New("redis gone")
	guard, err := NewGuard(store, "worker", 0)
	require.NoError(t, err)

	err = guard.Once(context.Background(), "evt", func(context.Context) error { return errors.New("handler") })
	require.ErrorContains(t, err, "handler")
	require.ErrorContains(t, err, "release claim evt")
}

func TestOnceStoreFailure(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("connection refused")
	guard, err := NewGuard(store, "worker", time.Minute)
	require.NoError(t, err)

	err = guard.Once(context.Background(), "evt", func(context.Context) error {
		t.Fatal("handler must not run")
		return nil
	})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.ErrorIs(t, err, store.setErr)
}

func TestOnceConcurrentDeliveries(t *testing.T) {
	guard, err := NewGuard(newMemStore(), "worker", time.Minute)
	require.NoError(t, err)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = guard.Once(context.Background(), "evt-1", func(context.Context) error {
				ran.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, ran.Load())
}

func TestNewGuardValidation(t *testing.T) {
	_, err := NewGuard(nil, "worker", time.Minute)
	require.Error(t, err)
	_, err = NewGuard(newMemStore(), " ", time.Minute)
	require.Error(t, err)
	_, err = NewGuard(newMemStore(), "worker", -time.Second)
	require.Error(t, err)

	guard, err := NewGuard(newMemStore(), "worker", time.Minute)
	require.NoError(t, err)
	require.Error(t, guard.Once(context.Background(), "  ", func(context.Context) error { return nil }))
}
