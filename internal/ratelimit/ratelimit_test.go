package ratelimit

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestMemoryLimiterBurstAndRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(60, 3)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, _ := l.Allow(ctx, "a")
		if !d.Allowed {
			t.Fatalf("request %d within the burst was rejected", i)
		}
	}

	d, _ := l.Allow(ctx, "a")
	if d.Allowed {
		t.Fatal("request beyond the burst was allowed")
	}
	if !d.Reset.After(now) {
		t.Errorf("expected a reset in the future, got %v", d.Reset)
	}

	// Other keys have their own bucket
	if d, _ := l.Allow(ctx, "b"); !d.Allowed {
		t.Error("independent key was rejected")
	}

	// One token per second at 60 requests per minute
	now = now.Add(time.Second)
	if d, _ := l.Allow(ctx, "a"); !d.Allowed {
		t.Error("request after refill was rejected")
	}
}

// fakeScripter evaluates the fixed window script against an in-memory map
type fakeScripter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (f *fakeScripter) incr(ctx context.Context, keys []string) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[keys[0]]++
	cmd := redis.NewCmd(ctx)
	cmd.SetVal(f.counts[keys[0]])
	return cmd
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.incr(ctx, keys)
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return f.incr(ctx, keys)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal(make([]bool, len(hashes)))
	return cmd
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("sha")
	return cmd
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	scripter := &fakeScripter{counts: make(map[string]int64)}
	now := time.Date(2024, 1, 1, 12, 0, 30, 0, time.UTC)

	l := NewRedisLimiter(scripter, "coinscope:ratelimit", 2)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "ip:1.2.3.4")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !d.Allowed || d.Remaining != 1-i {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}

	d, err := l.Allow(ctx, "ip:1.2.3.4")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Errorf("third request should be rejected: %+v", d)
	}
	if !d.Reset.Equal(time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC)) {
		t.Errorf("unexpected reset %v", d.Reset)
	}

	// The next minute starts a new window
	now = now.Add(time.Minute)
	if d, _ := l.Allow(ctx, "ip:1.2.3.4"); !d.Allowed {
		t.Error("request in a new window was rejected")
	}

	for key := range scripter.counts {
		if !strings.HasPrefix(key, "coinscope:ratelimit:ip:1.2.3.4:") {
			t.Errorf("unexpected key %q", key)
		}
	}
}
