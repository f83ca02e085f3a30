package hrdesk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/hrdesk/identity"
	"github.com/MrEthical07/hrdesk/internal/clock"
	"github.com/MrEthical07/hrdesk/storage"
)

const testPassword = "correct-horse-battery"

var testEpoch = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

func fastPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password = fastPasswordConfig()
	cfg.Session.IdleTimeout = 10 * time.Minute
	cfg.Session.SweepInterval = 0
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
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
	return mr, rdb
}

func testUsers(t *testing.T) []identity.User {
	t.Helper()
	h, err := identity.NewArgon2(fastPasswordConfig().hasherConfig())
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	hash, err := h.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return []identity.User{
		{Email: "admin@local.com", PasswordHash: hash, Role: "admin", FName: "Ada"},
		{Email: "hr@corp.example", PasswordHash: hash, Role: "hr"},
		{Email: "manager@corp.example", PasswordHash: hash, Role: "manager"},
		{Email: "staff@corp.example", PasswordHash: hash},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type portalHarness struct {
	portal *Portal
	clock  *clock.Fake
	mem    *storage.Memory
	users  []identity.User
}

func newPortalHarness(t *testing.T, cfg Config, configure ...func(*Builder)) *portalHarness {
	t.Helper()
	h := &portalHarness{
		clock: clock.NewFake(testEpoch),
		mem:   storage.NewMemory(),
		users: testUsers(t),
	}
	h.portal = h.build(t, cfg, configure...)
	return h
}

// build creates another portal over the same storage and clock, the
// equivalent of a server restart.
func (h *portalHarness) build(t *testing.T, cfg Config, configure ...func(*Builder)) *Portal {
	t.Helper()
	b := New().
		WithConfig(cfg).
		WithStorage(h.mem).
		WithUsers(h.users...).
		WithClock(h.clock).
		WithLogger(discardLogger())
	for _, fn := range configure {
		fn(b)
	}
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}
