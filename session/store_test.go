package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/hrdesk/internal/clock"
	"github.com/MrEthical07/hrdesk/session"
	"github.com/MrEthical07/hrdesk/storage"
)

const testKey = "user:client-1"

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type eventLog struct {
	mu     sync.Mutex
	events []session.Event
}

func (l *eventLog) record(e session.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) kinds() []session.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]session.EventKind, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

type storeHarness struct {
	mem   *storage.Memory
	clock *clock.Fake
	feed  *session.Feed
	log   *eventLog
	idle  time.Duration
}

func newHarness(idle time.Duration) *storeHarness {
	return &storeHarness{
		mem:   storage.NewMemory(),
		clock: clock.NewFake(epoch),
		feed:  session.NewFeed(),
		log:   &eventLog{},
		idle:  idle,
	}
}

// open builds a fresh store over the shared backend, the equivalent of a page
// reload on the same client.
func (h *storeHarness) open(t *testing.T) *session.Store {
	t.Helper()
	s := session.NewStore(h.mem, testKey, h.idle,
		session.WithClock(h.clock),
		session.WithActivitySource(h.feed),
		session.WithListener(h.log.record),
	)
	s.Init(context.Background())
	t.Cleanup(s.Close)
	return s
}

func (h *storeHarness) raw(t *testing.T) (string, bool) {
	t.Helper()
	v, ok, err := h.mem.Get(context.Background(), testKey)
	if err != nil {
		t.Fatalf("storage get: %v", err)
	}
	return v, ok
}

func TestStoreRoundTripRestoresPersistedSession(t *testing.T) {
	h := newHarness(time.Minute)
	want := session.Session{
		Email:       "jane@corp.example",
		DisplayName: "Jane D.",
		FName:       "Jane",
		LName:       "Doe",
		Role:        "HR",
		UID:         "u-42",
	}

	first := h.open(t)
	if err := first.Login(context.Background(), want, true); err != nil {
		t.Fatalf("login: %v", err)
	}
	first.Close()

	second := h.open(t)
	got, ok := second.Current()
	if !ok {
		t.Fatal("expected restored session")
	}
	if got != want {
		t.Fatalf("restored session mismatch:\n got  %+v\n want %+v", got, want)
	}
	if !second.Remembered() {
		t.Fatal("restored session must be marked remembered")
	}
	if at, _ := second.LastActivity(); !at.Equal(epoch) {
		t.Fatalf("expected lastActivity re-stamped to now, got %v", at)
	}
}

func TestStoreDiscardsCorruptRecords(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"whitespace":    "   ",
		"not json":      "{not json",
		"json array":    `["a@b.c"]`,
		"missing email": `{"role":"ADMIN","name":"x"}`,
		"blank email":   `{"email":"  "}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(time.Minute)
			if err := h.mem.Set(context.Background(), testKey, raw); err != nil {
				t.Fatalf("seed: %v", err)
			}

			s := h.open(t)
			if _, ok := s.Current(); ok {
				t.Fatal("corrupt record must not produce a session")
			}
			if s.State() != session.StateLoggedOut {
				t.Fatalf("expected logged_out, got %s", s.State())
			}
			if _, ok := h.raw(t); ok {
				t.Fatal("corrupt record must be deleted")
			}
			kinds := h.log.kinds()
			if len(kinds) != 1 || kinds[0] != session.EventRecordDiscarded {
				t.Fatalf("expected one record_discarded event, got %v", kinds)
			}
		})
	}
}

func TestStoreInitWithoutRecordIsLoggedOut(t *testing.T) {
	h := newHarness(time.Minute)
	s := session.NewStore(h.mem, testKey, h.idle, session.WithClock(h.clock))
	if !s.Loading() {
		t.Fatal("store must report loading before Init")
	}
	s.Init(context.Background())
	if s.Loading() {
		t.Fatal("store must stop loading after Init")
	}
	if _, ok := s.Current(); ok {
		t.Fatal("expected no session")
	}
	if len(h.log.kinds()) != 0 {
		t.Fatal("no events expected for an absent record")
	}
}

func TestStoreRememberFalseIsNotPersisted(t *testing.T) {
	h := newHarness(time.Minute)

	first := h.open(t)
	if err := first.Login(context.Background(), session.Session{Email: "a@corp.example"}, false); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, ok := first.Current(); !ok {
		t.Fatal("in-memory session must be live")
	}
	if _, ok := h.raw(t); ok {
		t.Fatal("remember=false must not persist a record")
	}
	first.Close()

	second := h.open(t)
	if _, ok := second.Current(); ok {
		t.Fatal("remember=false session must not survive a reload")
	}
}

func TestStoreRememberFalseClearsEarlierRecord(t *testing.T) {
	h := newHarness(time.Minute)
	s := h.open(t)
	ctx := context.Background()

	if err := s.Login(ctx, session.Session{Email: "a@corp.example"}, true); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.Login(ctx, session.Session{Email: "b@corp.example"}, false); err != nil {
		t.Fatalf("second login: %v", err)
	}
	if _, ok := h.raw(t); ok {
		t.Fatal("later remember=false login must remove the earlier record")
	}
	got, _ := s.Current()
	if got.Email != "b@corp.example" {
		t.Fatalf("expected last login to win, got %q", got.Email)
	}
}

func TestStoreIdleTimeoutFiresAtDeadline(t *testing.T) {
	h := newHarness(10 * time.Minute)
	s := h.open(t)

	if err := s.Login(context.Background(), session.Session{Email: "a@corp.example"}, true); err != nil {
		t.Fatalf("login: %v", err)
	}

	h.clock.Advance(10*time.Minute - time.Nanosecond)
	if _, ok := s.Current(); !ok {
		t.Fatal("session expired before the idle deadline")
	}

	h.clock.Advance(time.Nanosecond)
	if _, ok := s.Current(); ok {
		t.Fatal("session must expire at the idle deadline")
	}
	if _, ok := h.raw(t); ok {
		t.Fatal("idle expiry must delete the persisted record")
	}

	h.clock.Advance(time.Hour)
	var timeouts int
	for _, k := range h.log.kinds() {
		if k == session.EventIdleTimeout {
			timeouts++
		}
	}
	if timeouts != 1 {
		t.Fatalf("expected exactly one idle_timeout event, got %d", timeouts)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("expected no outstanding timers, got %d", h.clock.Pending())
	}
}

func TestStoreActivityReschedulesExpiry(t *testing.T) {
	h := newHarness(10 * time.Minute)
	s := h.open(t)

	if err := s.Login(context.Background(), session.Session{Email: "a@corp.example"}, false); err != nil {
		t.Fatalf("login: %v", err)
	}

	h.clock.Advance(5 * time.Minute)
	h.feed.Publish(session.ActivityKeyDown)

	if at, _ := s.LastActivity(); !at.Equal(epoch.Add(5 * time.Minute)) {
		t.Fatalf("activity not recorded, lastActivity=%v", at)
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected exactly one idle timer, got %d", h.clock.Pending())
	}

	h.clock.Advance(10*time.Minute - time.Nanosecond)
	if _, ok := s.Current(); !ok {
		t.Fatal("session expired before the rescheduled deadline")
	}
	if left, _ := s.ExpiresIn(); left != time.Nanosecond {
		t.Fatalf("expected 1ns left, got %v", left)
	}

	h.clock.Advance(time.Nanosecond)
	if _, ok := s.Current(); ok {
		t.Fatal("session must expire at lastActivity + idle")
	}
}

func TestStoreTouchRearmsTimer(t *testing.T) {
	h := newHarness(time.Minute)
	s := h.open(t)
	if err := s.Login(context.Background(), session.Session{Email: "a@corp.example"}, false); err != nil {
		t.Fatalf("login: %v", err)
	}

	for i := 0; i < 5; i++ {
		h.clock.Advance(50 * time.Second)
		s.Touch(session.ActivityPointerMove)
	}
	if _, ok := s.Current(); !ok {
		t.Fatal("steady activity must keep the session alive")
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected one timer after repeated touches, got %d", h.clock.Pending())
	}
}

func TestStoreTouchIgnoredWhileLoggedOut(t *testing.T) {
	h := newHarness(time.Minute)
	s := h.open(t)

	s.Touch(session.ActivityScroll)
	if h.clock.Pending() != 0 {
		t.Fatal("touch without session must not arm a timer")
	}
	if _, ok := s.LastActivity(); ok {
		t.Fatal("touch without session must not record activity")
	}
}

func TestStoreLogoutIsIdempotent(t *testing.T) {
	h := newHarness(time.Minute)
	s := h.open(t)
	ctx := context.Background()

	if err := s.Login(ctx, session.Session{Email: "a@corp.example"}, true); err != nil {
		t.Fatalf("login: %v", err)
	}
	s.Logout(ctx)
	s.Logout(ctx)

	if _, ok := s.Current(); ok {
		t.Fatal("expected no session after logout")
	}
	if _, ok := h.raw(t); ok {
		t.Fatal("logout must delete the record")
	}
	if h.clock.Pending() != 0 {
		t.Fatal("logout must cancel the idle timer")
	}
	if h.feed.Subscribers() != 0 {
		t.Fatal("logout must detach activity listeners")
	}

	var logouts int
	for _, k := range h.log.kinds() {
		if k == session.EventLogout {
			logouts++
		}
	}
	if logouts != 1 {
		t.Fatalf("expected one logout event, got %d", logouts)
	}
}

func TestStoreLoginAttachesSingleListener(t *testing.T) {
	h := newHarness(time.Minute)
	s := h.open(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Login(ctx, session.Session{Email: "a@corp.example"}, false); err != nil {
			t.Fatalf("login: %v", err)
		}
	}
	if h.feed.Subscribers() != 1 {
		t.Fatalf("expected one activity subscriber, got %d", h.feed.Subscribers())
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("expected one idle timer, got %d", h.clock.Pending())
	}
}

func TestStoreLoginRejectsSessionWithoutEmail(t *testing.T) {
	h := newHarness(time.Minute)
	s := h.open(t)

	err := s.Login(context.Background(), session.Session{Name: "nobody", Role: "ADMIN"}, true)
	if !errors.Is(err, session.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if _, ok := s.Current(); ok {
		t.Fatal("invalid candidate must not be adopted")
	}
	if _, ok := h.raw(t); ok {
		t.Fatal("invalid candidate must not be persisted")
	}
}

func TestStoreLoginThenLogoutLastCallWins(t *testing.T) {
	h := newHarness(time.Minute)
	s := h.open(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Login(ctx, session.Session{Email: "a@corp.example"}, true)
		}()
	}
	wg.Wait()
	s.Logout(ctx)

	if _, ok := h.raw(t); ok {
		t.Fatal("record written by earlier logins must not survive the final logout")
	}
	if s.State() != session.StateLoggedOut {
		t.Fatalf("expected logged_out, got %s", s.State())
	}
}

func TestStoreCloseCancelsTimerAndKeepsRecord(t *testing.T) {
	h := newHarness(time.Minute)
	s := h.open(t)

	if err := s.Login(context.Background(), session.Session{Email: "a@corp.example"}, true); err != nil {
		t.Fatalf("login: %v", err)
	}
	s.Close()

	if h.clock.Pending() != 0 {
		t.Fatal("close must cancel the idle timer")
	}
	if h.feed.Subscribers() != 0 {
		t.Fatal("close must detach activity listeners")
	}
	if _, ok := h.raw(t); !ok {
		t.Fatal("close must not delete the persisted record")
	}
	if err := s.Login(context.Background(), session.Session{Email: "b@corp.example"}, true); !errors.Is(err, session.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

type failingStorage struct {
	err error
}

func (f failingStorage) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingStorage) Set(context.Context, string, string) error { return f.err }
func (f failingStorage) Delete(context.Context, string) error { return f.err }

func TestStoreAbsorbsStorageFailures(t *testing.T) {
	boom := errors.New("backend down")
	log := &eventLog{}
	s := session.NewStore(failingStorage{err: boom}, testKey, time.Minute,
		session.WithClock(clock.NewFake(epoch)),
		session.WithListener(log.record),
	)
	t.Cleanup(s.Close)

	s.Init(context.Background())
	if s.State() != session.StateLoggedOut {
		t.Fatalf("expected logged_out after failed read, got %s", s.State())
	}

	if err := s.Login(context.Background(), session.Session{Email: "a@corp.example"}, true); err != nil {
		t.Fatalf("storage failure must not fail login: %v", err)
	}
	if _, ok := s.Current(); !ok {
		t.Fatal("session must be live in memory despite write failure")
	}
	if s.Remembered() {
		t.Fatal("a session whose record was not written must not report remembered")
	}

	var storageErrs int
	log.mu.Lock()
	for _, e := range log.events {
		if e.Kind == session.EventStorageError {
			storageErrs++
			if !errors.Is(e.Err, boom) {
				t.Fatalf("unexpected event error %v", e.Err)
			}
		}
	}
	log.mu.Unlock()
	// get on Init, set on Login, then the cleanup delete.
	if storageErrs != 3 {
		t.Fatalf("expected 3 storage_error events, got %d", storageErrs)
	}
}

// flakySetStorage fails writes while failSet is true.
type flakySetStorage struct {
	*storage.Memory
	failSet bool
}

func (f *flakySetStorage) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errors.New("write refused")
	}
	return f.Memory.Set(ctx, key, value)
}

func TestStoreFailedRememberWriteDropsEarlierRecord(t *testing.T) {
	backend := &flakySetStorage{Memory: storage.NewMemory()}
	fake := clock.NewFake(epoch)
	open := func() *session.Store {
		s := session.NewStore(backend, testKey, time.Minute, session.WithClock(fake))
		s.Init(context.Background())
		t.Cleanup(s.Close)
		return s
	}

	first := open()
	if err := first.Login(context.Background(), session.Session{Email: "alice@corp.example"}, true); err != nil {
		t.Fatalf("login alice: %v", err)
	}

	backend.failSet = true
	if err := first.Login(context.Background(), session.Session{Email: "bob@corp.example"}, true); err != nil {
		t.Fatalf("login bob: %v", err)
	}
	if cur, _ := first.Current(); cur.Email != "bob@corp.example" {
		t.Fatalf("expected bob live, got %q", cur.Email)
	}
	if first.Remembered() {
		t.Fatal("bob's record was never written, remembered must be false")
	}
	first.Close()

	reloaded := open()
	if cur, ok := reloaded.Current(); ok {
		t.Fatalf("reload must not restore an earlier principal, got %q", cur.Email)
	}
	if _, ok, _ := backend.Get(context.Background(), testKey); ok {
		t.Fatal("stale record must be deleted")
	}
}

func TestStoreListenerMayReenter(t *testing.T) {
	h := newHarness(time.Minute)
	var s *session.Store
	var sawEmail string
	s = session.NewStore(h.mem, testKey, h.idle,
		session.WithClock(h.clock),
		session.WithListener(func(e session.Event) {
			if e.Kind == session.EventLogin {
				cur, _ := s.Current()
				sawEmail = cur.Email
			}
		}),
	)
	t.Cleanup(s.Close)
	s.Init(context.Background())

	if err := s.Login(context.Background(), session.Session{Email: "a@corp.example"}, false); err != nil {
		t.Fatalf("login: %v", err)
	}
	if sawEmail != "a@corp.example" {
		t.Fatalf("listener must observe the adopted session, got %q", sawEmail)
	}
}

func TestScenarioRememberedAdminRestoredWithDefaultRole(t *testing.T) {
	h := newHarness(time.Minute)

	first := h.open(t)
	if err := first.Login(context.Background(), session.Session{Email: "admin@local.com"}, true); err != nil {
		t.Fatalf("login: %v", err)
	}
	first.Close()

	second := h.open(t)
	got, ok := second.Current()
	if !ok {
		t.Fatal("expected session restored after reload")
	}
	if got.Email != "admin@local.com" {
		t.Fatalf("unexpected email %q", got.Email)
	}
	if got.Role != "USER" {
		t.Fatalf("expected default role USER, got %q", got.Role)
	}
	if got.DisplayName != "admin" {
		t.Fatalf("expected display name from email, got %q", got.DisplayName)
	}
}

func TestScenarioIdleThirtyClearsAtThirtyOne(t *testing.T) {
	h := newHarness(30 * time.Second)
	s := h.open(t)

	if err := s.Login(context.Background(), session.Session{Email: "a@corp.example"}, true); err != nil {
		t.Fatalf("login: %v", err)
	}

	h.clock.Advance(29 * time.Second)
	if _, ok := s.Current(); !ok {
		t.Fatal("session cleared too early")
	}

	h.clock.Advance(2 * time.Second)
	if _, ok := s.Current(); ok {
		t.Fatal("session must be cleared by t=31")
	}
	if _, ok := h.raw(t); ok {
		t.Fatal("persisted record must be removed by t=31")
	}
}

func TestMustFromContextPanicsWithoutStore(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if err, ok := r.(error); !ok || !errors.Is(err, session.ErrNoStore) {
			t.Fatalf("expected ErrNoStore panic, got %v", r)
		}
	}()
	session.MustFromContext(context.Background())
}

func TestFromContextReturnsBoundStore(t *testing.T) {
	s := session.NewStore(storage.NewMemory(), testKey, 0)
	ctx := session.WithStore(context.Background(), s)

	got, ok := session.FromContext(ctx)
	if !ok || got != s {
		t.Fatal("expected bound store")
	}
	if session.MustFromContext(ctx) != s {
		t.Fatal("MustFromContext must return the bound store")
	}
	if s.IdleTimeout() != session.DefaultIdleTimeout {
		t.Fatalf("expected default idle timeout, got %v", s.IdleTimeout())
	}
}
