package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/hrdesk/internal/clock"
)

// DefaultIdleTimeout bounds the time since the last activity before a
// session is logged out. Override it per store; it is a product setting, not a
// protocol constant.
const DefaultIdleTimeout = 30 * time.Minute

const defaultStorageTimeout = 5 * time.Second

// EventKind classifies store notifications.
type EventKind uint8

const (
	EventRestored EventKind = iota
	EventLogin
	EventLogout
	EventIdleTimeout
	EventRecordDiscarded
	EventStorageError
)

func (k EventKind) String() string {
	switch k {
	case EventRestored:
		return "restored"
	case EventLogin:
		return "login"
	case EventLogout:
		return "logout"
	case EventIdleTimeout:
		return "idle_timeout"
	case EventRecordDiscarded:
		return "record_discarded"
	case EventStorageError:
		return "storage_error"
	default:
		return "unknown"
	}
}

// Event describes a state change or an absorbed failure inside a Store.
type Event struct {
	Kind       EventKind
	Key        string
	Session    Session
	Remembered bool
	At         time.Time
	Err        error
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithActivitySource sets the source the store listens to while logged in.
func WithActivitySource(src ActivitySource) Option {
	return func(s *Store) { s.activity = src }
}

// WithLogger sets the logger for absorbed failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithListener registers fn to receive every Event. fn runs after the store
// lock is released and may call back into the store.
func WithListener(fn func(Event)) Option {
	return func(s *Store) { s.listener = fn }
}

// WithStorageTimeout bounds each storage round trip.
func WithStorageTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.storageTimeout = d
		}
	}
}

// Store is the single source of truth for who is logged in on one client.
//
// Store methods are safe for concurrent use. Storage calls are made while the
// store lock is held, so the persisted effect of an operation is never
// reordered with a later operation on the same key.
type Store struct {
	storage        Storage
	key            string
	idleTimeout    time.Duration
	storageTimeout time.Duration
	clock          clock.Clock
	activity       ActivitySource
	logger         *slog.Logger
	listener       func(Event)

	mu           sync.Mutex
	state        State
	current      Session
	remembered   bool
	lastActivity time.Time
	timer        clock.Timer
	timerGen     uint64
	unsubscribe  func()
	subGen       uint64
	closed       bool
	pending      []Event
}

// NewStore creates an uninitialized store persisting under key. A
// non-positive idleTimeout selects DefaultIdleTimeout.
func NewStore(storage Storage, key string, idleTimeout time.Duration, opts ...Option) *Store {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	s := &Store{
		storage:        storage,
		key:            key,
		idleTimeout:    idleTimeout,
		storageTimeout: defaultStorageTimeout,
		clock:          clock.System(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdleTimeout returns the configured idle bound.
func (s *Store) IdleTimeout() time.Duration { return s.idleTimeout }

// Init adopts the persisted record when it is present and valid. Absent,
// unreadable or email-less records leave the store logged out; unreadable
// records are deleted. Init runs once; later calls are no-ops.
func (s *Store) Init(ctx context.Context) {
	s.mu.Lock()
	defer s.unlockAndNotify()

	if s.closed || s.state != StateUninitialized {
		return
	}

	sctx, cancel := s.storageContext(ctx)
	defer cancel()

	raw, ok, err := s.storage.Get(sctx, s.key)
	if err != nil {
		s.storageFailedLocked("get", err)
		s.state = StateLoggedOut
		return
	}
	if !ok {
		s.state = StateLoggedOut
		return
	}

	sess, err := DecodeRecord(raw)
	if err != nil {
		s.logger.Info("discarding unreadable session record", "key", s.key, "err", err)
		if delErr := s.storage.Delete(sctx, s.key); delErr != nil {
			s.storageFailedLocked("delete", delErr)
		}
		s.state = StateLoggedOut
		s.pending = append(s.pending, Event{Kind: EventRecordDiscarded, Key: s.key, At: s.clock.Now(), Err: err})
		return
	}

	s.adoptLocked(sess.Normalize(), true)
	s.pending = append(s.pending, Event{
		Kind:       EventRestored,
		Key:        s.key,
		Session:    s.current,
		Remembered: true,
		At:         s.lastActivity,
	})
}

// Login records an already-verified principal. When remember is true the
// session is persisted; otherwise any persisted record is deleted so the
// session lives only in memory.
func (s *Store) Login(ctx context.Context, candidate Session, remember bool) error {
	if !candidate.Valid() {
		return ErrInvalidSession
	}
	sess := candidate.Normalize()

	s.mu.Lock()
	defer s.unlockAndNotify()

	if s.closed {
		return ErrStoreClosed
	}

	sctx, cancel := s.storageContext(ctx)
	defer cancel()

	if remember {
		raw, err := EncodeRecord(sess)
		if err == nil {
			err = s.storage.Set(sctx, s.key, raw)
		}
		if err != nil {
			s.storageFailedLocked("set", err)
			// An earlier principal's record must not outlive this login.
			remember = false
			if delErr := s.storage.Delete(sctx, s.key); delErr != nil {
				s.storageFailedLocked("delete", delErr)
			}
		}
	} else if err := s.storage.Delete(sctx, s.key); err != nil {
		s.storageFailedLocked("delete", err)
	}

	s.adoptLocked(sess, remember)
	s.pending = append(s.pending, Event{
		Kind:       EventLogin,
		Key:        s.key,
		Session:    sess,
		Remembered: remember,
		At:         s.lastActivity,
	})
	return nil
}

// Logout clears the session, deletes the persisted record and cancels the
// idle timer. Calling it without a session has no observable effect.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.unlockAndNotify()

	if s.closed {
		return
	}
	s.logoutLocked(ctx, EventLogout)
}

// Touch records user activity. It is ignored while no session exists.
func (s *Store) Touch(a Activity) {
	s.mu.Lock()
	defer s.unlockAndNotify()

	if s.closed || s.state != StateLoggedIn {
		return
	}
	s.lastActivity = s.clock.Now()
	s.rearmLocked()
}

// Current returns the adopted session, if any.
func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoggedIn {
		return Session{}, false
	}
	return s.current, true
}

// LastActivity returns the last activity time; ok is false while logged out.
func (s *Store) LastActivity() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoggedIn {
		return time.Time{}, false
	}
	return s.lastActivity, true
}

// ExpiresIn returns the time left before idle logout.
func (s *Store) ExpiresIn() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoggedIn {
		return 0, false
	}
	remaining := s.idleTimeout - s.clock.Now().Sub(s.lastActivity)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Loading reports whether Init has yet to complete.
func (s *Store) Loading() bool {
	return s.State() == StateUninitialized
}

// Remembered reports whether the live session is persisted.
func (s *Store) Remembered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateLoggedIn && s.remembered
}

// Close cancels the idle timer and detaches the activity listener. The
// persisted record is left untouched. Login fails after Close; every other
// mutation is ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.detachLocked()
}

func (s *Store) adoptLocked(sess Session, remembered bool) {
	s.current = sess
	s.remembered = remembered
	s.state = StateLoggedIn
	s.lastActivity = s.clock.Now()
	s.attachLocked()
	s.rearmLocked()
}

func (s *Store) logoutLocked(ctx context.Context, kind EventKind) {
	prev, wasLoggedIn := s.current, s.state == StateLoggedIn
	remembered := s.remembered

	s.stopTimerLocked()
	s.detachLocked()
	s.current = Session{}
	s.remembered = false
	s.lastActivity = time.Time{}
	s.state = StateLoggedOut

	sctx, cancel := s.storageContext(ctx)
	defer cancel()
	if err := s.storage.Delete(sctx, s.key); err != nil {
		s.storageFailedLocked("delete", err)
	}

	if wasLoggedIn {
		if kind == EventIdleTimeout {
			s.logger.Info("session expired after inactivity", "key", s.key, "idle_timeout", s.idleTimeout)
		}
		s.pending = append(s.pending, Event{
			Kind:       kind,
			Key:        s.key,
			Session:    prev,
			Remembered: remembered,
			At:         s.clock.Now(),
		})
	}
}

// rearmLocked replaces the idle timer with one covering the remaining idle
// window, or logs out at once when the window has already closed.
func (s *Store) rearmLocked() {
	s.stopTimerLocked()
	if s.state != StateLoggedIn {
		return
	}

	remaining := s.idleTimeout - s.clock.Now().Sub(s.lastActivity)
	if remaining <= 0 {
		s.logoutLocked(context.Background(), EventIdleTimeout)
		return
	}

	gen := s.timerGen
	s.timer = s.clock.AfterFunc(remaining, func() { s.expire(gen) })
}

func (s *Store) expire(gen uint64) {
	s.mu.Lock()
	defer s.unlockAndNotify()

	// A stopped timer may still fire once; the generation tells it apart.
	if s.closed || gen != s.timerGen || s.state != StateLoggedIn {
		return
	}
	s.timer = nil
	s.rearmLocked()
}

func (s *Store) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Store) attachLocked() {
	if s.activity == nil || s.unsubscribe != nil {
		return
	}
	s.subGen++
	gen := s.subGen
	s.unsubscribe = s.activity.Subscribe(func(a Activity) { s.onActivity(gen, a) })
}

func (s *Store) detachLocked() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.subGen++
}

func (s *Store) onActivity(gen uint64, _ Activity) {
	s.mu.Lock()
	defer s.unlockAndNotify()

	if s.closed || gen != s.subGen || s.state != StateLoggedIn {
		return
	}
	s.lastActivity = s.clock.Now()
	s.rearmLocked()
}

func (s *Store) storageFailedLocked(op string, err error) {
	s.logger.Warn("session storage operation failed", "op", op, "key", s.key, "err", err)
	s.pending = append(s.pending, Event{Kind: EventStorageError, Key: s.key, At: s.clock.Now(), Err: err})
}

// storageContext detaches storage calls from caller cancellation so a
// disconnecting client cannot abort a logout's delete halfway.
func (s *Store) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), s.storageTimeout)
}

func (s *Store) unlockAndNotify() {
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	if s.listener == nil {
		return
	}
	for _, e := range events {
		s.listener(e)
	}
}
