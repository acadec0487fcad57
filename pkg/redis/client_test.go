package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
)

func TestFixedWindowAllowArmsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	client := &Client{store: store}

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "login:ip:abc", 2, time.Minute)
		require.NoError(t, err)
		require.Equal(t, want, allowed, "hit %d", i+1)
		require.EqualValues(t, i+1, count)
	}
	require.Equal(t, map[string]int64{"tc:rate_limit:login:ip:abc": 60000}, store.pexpire)
}

func TestIncrWithTTLRejectsZeroTTL(t *testing.T) {
	client := &Client{store: newFakeStore()}
	_, err := client.IncrWithTTL(context.Background(), "tc:counter:x", 0)
	require.Error(t, err)
}

func TestReleaseIfOwner(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	client := &Client{store: store}
	key := client.LockKey("cron-worker:dev")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	require.NoError(t, err)
	require.False(t, released)
	require.Contains(t, store.data, key)

	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	require.NoError(t, err)
	require.True(t, released)
	require.NotContains(t, store.data, key)
}

func TestSessionKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeStore()}

	key := client.AccessSessionKey("jti-1")
	require.NoError(t, client.Set(ctx, key, "user-1", 10*time.Minute))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "user-1", got)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, redis.Nil)
}

func TestUninitializedClient(t *testing.T) {
	var client *Client
	require.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	require.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "tc:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "tc:rate_limit:scope", client.RateLimitKey("scope"))
	require.Equal(t, "tc:counter:audit-summary:2026-03-01", client.CounterKey("audit-summary:2026-03-01"))
	require.Equal(t, "tc:session:access:jti", client.AccessSessionKey("jti"))
	require.Equal(t, "tc:lock:cron", client.LockKey(" cron "))
	require.Equal(t, "tc:idempotency:id", client.IdempotencyKey("", "id"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:pw@cache:6380/0", DB: 3, PoolSize: 7, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, "pw", opts.Password)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, 7, opts.PoolSize)
	require.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 1})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 1, opts.DB)
}

// fakeStore evaluates the two scripts the client ships by their sha.
type fakeStore struct {
	data    map[string]string
	counts  map[string]int64
	pexpire map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data:    map[string]string{},
		counts:  map[string]int64{},
		pexpire: map[string]int64{},
	}
}

func (f *fakeStore) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			n++
		}
		delete(f.data, key)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeStore) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	switch sha {
	case windowScript.Hash():
		f.counts[keys[0]]++
		if f.counts[keys[0]] == 1 {
			f.pexpire[keys[0]] = args[0].(int64)
		}
		return redis.NewCmdResult(f.counts[keys[0]], nil)
	case releaseScript.Hash():
		if v, ok := f.data[keys[0]]; ok && v == args[0] {
			delete(f.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script %s", sha))
}

func (f *fakeStore) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, fmt.Errorf("eval not expected"))
}

func (f *fakeStore) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeStore) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeStore) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeStore) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}
