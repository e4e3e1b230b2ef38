package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sejinoh/pickupz-backend/pkg/config"
)

type fakeStore struct {
	values map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.values[key] = toString(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Get(_ context.Context, key string) *redis.StringCmd {
	if v, ok := f.values[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := f.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = toString(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) Incr(_ context.Context, key string) *redis.IntCmd {
	count := int64(1)
	if v, ok := f.values[key]; ok && v == "1" {
		count = 2
	}
	f.values[key] = toString(count)
	return redis.NewIntResult(count, nil)
}

func (f *fakeStore) Expire(context.Context, string, time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var deleted int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			deleted++
		}
	}
	return redis.NewIntResult(deleted, nil)
}

func (f *fakeStore) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	// Mirrors the compare-and-del release script.
	if len(keys) == 1 && len(args) == 1 && f.values[keys[0]] == toString(args[0]) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func toString(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case int64:
		if typed == 1 {
			return "1"
		}
		return "2"
	default:
		return ""
	}
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("missing url must be rejected")
	}

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:      "redis://localhost:6379/2",
		PoolSize: 15,
	})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.DB != 2 {
		t.Fatalf("url database should win, got %d", opts.DB)
	}
	if opts.PoolSize != 15 {
		t.Fatalf("config pool size should apply, got %d", opts.PoolSize)
	}
}

func TestLockLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := &Client{store: newFakeStore()}

	ok, err := client.AcquireLock(ctx, "sweep", "holder-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire should win: ok=%v err=%v", ok, err)
	}

	ok, err = client.AcquireLock(ctx, "sweep", "holder-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire must lose: ok=%v err=%v", ok, err)
	}

	// A non-holder cannot release.
	released, err := client.ReleaseLock(ctx, "sweep", "holder-b")
	if err != nil || released {
		t.Fatalf("stranger release must be a no-op: released=%v err=%v", released, err)
	}

	released, err = client.ReleaseLock(ctx, "sweep", "holder-a")
	if err != nil || !released {
		t.Fatalf("holder release should succeed: released=%v err=%v", released, err)
	}

	ok, err = client.AcquireLock(ctx, "sweep", "holder-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("lock should be free again: ok=%v err=%v", ok, err)
	}
}

func TestKeyNamespacing(t *testing.T) {
	t.Parallel()

	client := &Client{}
	if got := client.LockKey("sweep"); got != "pz:lock:sweep" {
		t.Fatalf("unexpected lock key %q", got)
	}
	if got := client.CounterKey("noshow"); got != "pz:counter:noshow" {
		t.Fatalf("unexpected counter key %q", got)
	}
}
