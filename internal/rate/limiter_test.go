package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

func TestSignInBudgetPerEmail(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxAttempts: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, "a@corp.example", ""); err != nil {
			t.Fatalf("failure %d: unexpected %v", i+1, err)
		}
	}
	if err := l.CheckSignIn(ctx, "A@corp.example", ""); err != nil {
		t.Fatalf("budget not yet exhausted: %v", err)
	}
	if err := l.RecordFailure(ctx, "a@corp.example", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third failure must exhaust budget, got %v", err)
	}
	if err := l.CheckSignIn(ctx, "a@corp.example", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckSignIn(ctx, "b@corp.example", ""); err != nil {
		t.Fatalf("other emails must be unaffected: %v", err)
	}

	if ttl := mr.TTL("hs:a@corp.example"); ttl != time.Minute {
		t.Fatalf("expected window ttl, got %v", ttl)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckSignIn(ctx, "a@corp.example", ""); err != nil {
		t.Fatalf("window must reset after expiry: %v", err)
	}
}

func TestSignInBudgetPerIP(t *testing.T) {
	l, _ := newLimiterTest(t, Config{EnableIPThrottle: true, MaxAttempts: 2, Window: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "a@corp.example", "10.0.0.1")
	_ = l.RecordFailure(ctx, "b@corp.example", "10.0.0.1")

	if err := l.CheckSignIn(ctx, "c@corp.example", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP budget exhausted, got %v", err)
	}
	if err := l.CheckSignIn(ctx, "c@corp.example", "10.0.0.2"); err != nil {
		t.Fatalf("other IPs must be unaffected: %v", err)
	}
}

func TestResetClearsEmailCounter(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxAttempts: 5, Window: time.Minute})
	ctx := context.Background()

	_ = l.RecordFailure(ctx, "a@corp.example", "")
	_ = l.RecordFailure(ctx, "a@corp.example", "")
	if n, err := l.Attempts(ctx, "a@corp.example"); err != nil || n != 2 {
		t.Fatalf("expected 2 attempts, got %d err=%v", n, err)
	}

	if err := l.Reset(ctx, "a@corp.example"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, err := l.Attempts(ctx, "a@corp.example"); err != nil || n != 0 {
		t.Fatalf("expected 0 attempts after reset, got %d err=%v", n, err)
	}
}

func TestRedisFailureIsWrapped(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxAttempts: 5, Window: time.Minute})
	mr.Close()

	if err := l.CheckSignIn(context.Background(), "a@corp.example", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := l.RecordFailure(context.Background(), "a@corp.example", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
