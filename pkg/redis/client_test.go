package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/mesa-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("expected first request allowed with count 1, got allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected expire for first increment")
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.IdempotencyKey("scope", "id"):   "mesa:idempotency:scope:id",
		client.RateLimitKey("scope"):           "mesa:rate_limit:scope",
		client.AccessSessionKey("abc"):         "mesa:session:access:abc",
		client.CartKey("c1"):                   "mesa:cart:c1",
		client.LockKey("cart", "c1"):           "mesa:lock:cart:c1",
		client.LockKey("cron", "", " worker "): "mesa:lock:cron:worker",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected key %s, got %s", want, got)
		}
	}

	staging := &Client{prefix: "mesa-staging"}
	if got := staging.CartKey("c1"); got != "mesa-staging:cart:c1" {
		t.Fatalf("expected configured prefix, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:pw@cache:6380/3", PoolSize: 20, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 3 || opts.Password != "pw" {
		t.Fatalf("url fields not applied: %+v", opts)
	}
	if opts.PoolSize != 20 || opts.DialTimeout != time.Second {
		t.Fatalf("config should fill unset pool settings: pool=%d dial=%s", opts.PoolSize, opts.DialTimeout)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 {
		t.Fatalf("address config not applied: %+v", opts)
	}

	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
}

func TestLockAcquireRelease(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	first, err := NewLock(client, client.LockKey("cron"), time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewLock(client, client.LockKey("cron"), time.Minute)

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire, got ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail, got ok=%v err=%v", ok, err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner should be a no-op: %v", err)
	}
	if err := second.AcquireWithin(ctx, 5*time.Millisecond, time.Millisecond); err != ErrLockNotAcquired {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := second.AcquireWithin(ctx, time.Second, time.Millisecond); err != nil {
		t.Fatalf("expected lock after release: %v", err)
	}
}

func TestLockReleaseLeavesNewOwnerAlone(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cart", "c1")

	stale, _ := NewLock(client, key, time.Second)
	if ok, err := stale.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected acquire, got ok=%v err=%v", ok, err)
	}
	// the TTL lapses and another worker takes the key
	delete(mock.data, key)
	current, _ := NewLock(client, key, time.Second)
	if ok, err := current.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected second acquire, got ok=%v err=%v", ok, err)
	}

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mock.evalCalls != 1 {
		t.Fatalf("expected one compare-and-delete call, got %d", mock.evalCalls)
	}
	if _, held := mock.data[key]; !held {
		t.Fatal("stale owner must not delete the current holder's lock")
	}
	if err := current.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, held := mock.data[key]; held {
		t.Fatal("owner release should delete the key")
	}
}

func TestCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	if err := client.Set(ctx, "k", "v1", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	removed, err := client.CompareAndDelete(ctx, "k", "v2")
	if err != nil || removed {
		t.Fatalf("mismatched value must not delete: removed=%v err=%v", removed, err)
	}
	removed, err = client.CompareAndDelete(ctx, "k", "v1")
	if err != nil || !removed {
		t.Fatalf("expected delete, got removed=%v err=%v", removed, err)
	}
	if _, err := (&Client{}).CompareAndDelete(ctx, "k", "v1"); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
}

func TestNewLockValidation(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, err := NewLock(nil, "k", time.Second); err == nil {
		t.Fatal("expected nil client error")
	}
	if _, err := NewLock(client, "", time.Second); err == nil {
		t.Fatal("expected empty key error")
	}
	if _, err := NewLock(client, "k", 0); err == nil {
		t.Fatal("expected ttl error")
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
	evalCalls   int
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// EvalSha stands in for the compare-and-delete script, the only one the
// client runs.
func (m *mockCmdable) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	m.evalCalls++
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script call keys=%v args=%v", keys, args))
	}
	if v, ok := m.data[keys[0]]; ok && v == fmt.Sprint(args[0]) {
		delete(m.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (m *mockCmdable) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, "", keys, args...)
}

func (m *mockCmdable) EvalRO(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, "", keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}
