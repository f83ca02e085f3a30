package hrdesk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/hrdesk/guard"
	"github.com/MrEthical07/hrdesk/identity"
	"github.com/MrEthical07/hrdesk/internal/clock"
	"github.com/MrEthical07/hrdesk/internal/rate"
	"github.com/MrEthical07/hrdesk/session"
)

const maxClientIDLen = 64

// Credentials is a password sign-in request.
type Credentials struct {
	Email    string
	Password string
	Remember bool
}

// Portal owns the per-client session stores and the operations the web
// layer performs on them.
type Portal struct {
	config    Config
	storage   session.Storage
	directory identity.Provider
	verifier  *identity.TokenVerifier
	limiter   *rate.Limiter
	guard     guard.Guard
	matrix    guard.Matrix
	clock     clock.Clock
	logger    *slog.Logger
	audit     *auditDispatcher
	metrics   *Metrics

	mu        sync.Mutex
	clients   map[string]*client
	closed    bool
	stopSweep chan struct{}
	sweepDone chan struct{}
}

type client struct {
	id    string
	store *session.Store
	feed  *session.Feed

	// initMu serializes Init; Authorize uses TryLock to avoid waiting on a
	// load already in flight.
	initMu sync.Mutex

	// lastSeen is guarded by Portal.mu.
	lastSeen time.Time
}

// Config returns a copy of the portal configuration.
func (p *Portal) Config() Config {
	return cloneConfig(p.config)
}

// Guard returns the guard used by Authorize.
func (p *Portal) Guard() guard.Guard { return p.guard }

// Client returns the initialized store for clientID, creating it on first
// use. Creating a store loads any remembered record.
func (p *Portal) Client(ctx context.Context, clientID string) (*session.Store, error) {
	c, err := p.lookup(clientID)
	if err != nil {
		return nil, err
	}

	c.initMu.Lock()
	c.store.Init(ctx)
	c.initMu.Unlock()

	return c.store, nil
}

// Clients reports the number of live client stores.
func (p *Portal) Clients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Peek returns clientID's initialized store without registering clients that
// have no session. An unknown client's remembered record is loaded into a
// detached store, which joins the registry only when the load restores a
// session; otherwise the returned store is logged out and already closed.
func (p *Portal) Peek(ctx context.Context, clientID string) (*session.Store, error) {
	c, err := p.peek(ctx, clientID)
	if err != nil {
		return nil, err
	}

	c.initMu.Lock()
	c.store.Init(ctx)
	c.initMu.Unlock()

	return c.store, nil
}

func (p *Portal) lookup(clientID string) (*client, error) {
	if !ValidClientID(clientID) {
		return nil, ErrInvalidClientID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPortalClosed
	}

	now := p.clock.Now()
	if c, ok := p.clients[clientID]; ok {
		c.lastSeen = now
		return c, nil
	}

	c := p.newClient(clientID)
	c.lastSeen = now
	p.clients[clientID] = c
	p.metrics.Inc(MetricClientCreated)
	return c, nil
}

// peek returns the registered client, or a detached one whose store has been
// initialized. Detached clients are registered only when logged in.
func (p *Portal) peek(ctx context.Context, clientID string) (*client, error) {
	if !ValidClientID(clientID) {
		return nil, ErrInvalidClientID
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPortalClosed
	}
	if c, ok := p.clients[clientID]; ok {
		c.lastSeen = p.clock.Now()
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c := p.newClient(clientID)
	c.store.Init(ctx)
	if c.store.State() != session.StateLoggedIn {
		c.store.Close()
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		c.store.Close()
		return nil, ErrPortalClosed
	}
	if existing, ok := p.clients[clientID]; ok {
		// Another request registered the client while this one was loading.
		c.store.Close()
		existing.lastSeen = p.clock.Now()
		return existing, nil
	}
	c.lastSeen = p.clock.Now()
	p.clients[clientID] = c
	p.metrics.Inc(MetricClientCreated)
	return c, nil
}

func (p *Portal) newClient(clientID string) *client {
	c := &client{
		id:   clientID,
		feed: session.NewFeed(),
	}
	c.store = session.NewStore(
		p.storage,
		p.config.Session.StorageKey+":"+clientID,
		p.config.Session.IdleTimeout,
		session.WithClock(p.clock),
		session.WithActivitySource(c.feed),
		session.WithLogger(p.logger.With("client", clientID)),
		session.WithStorageTimeout(p.config.Session.StorageTimeout),
		session.WithListener(func(e session.Event) { p.onSessionEvent(clientID, e) }),
	)
	return c
}

// SignIn verifies credentials against the directory and records the session
// on clientID's store.
func (p *Portal) SignIn(ctx context.Context, clientID string, cred Credentials) (session.Session, error) {
	if p.directory == nil {
		return session.Session{}, ErrPasswordSignInDisabled
	}
	if !ValidClientID(clientID) {
		return session.Session{}, ErrInvalidClientID
	}

	email := strings.TrimSpace(cred.Email)
	ip := ClientIPFromContext(ctx)
	if email == "" || cred.Password == "" {
		p.signInFailed(ctx, clientID, email, ip, ErrInvalidCredentials)
		return session.Session{}, ErrInvalidCredentials
	}

	if p.limiter != nil {
		if err := p.limiter.CheckSignIn(ctx, email, ip); err != nil {
			return session.Session{}, p.throttleError(ctx, clientID, email, ip, err)
		}
	}

	sess, err := p.directory.Authenticate(ctx, email, cred.Password)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) {
			p.logger.Error("directory lookup failed", "client", clientID, "err", err)
			return session.Session{}, fmt.Errorf("%w: %v", ErrSignInUnavailable, err)
		}
		p.signInFailed(ctx, clientID, email, ip, ErrInvalidCredentials)
		if p.limiter != nil {
			if rerr := p.limiter.RecordFailure(ctx, email, ip); rerr != nil && !errors.Is(rerr, rate.ErrRateLimited) {
				p.logger.Warn("recording failed sign-in", "client", clientID, "err", rerr)
			}
		}
		return session.Session{}, ErrInvalidCredentials
	}

	adopted, err := p.adopt(ctx, clientID, sess, cred.Remember)
	if err != nil {
		return session.Session{}, err
	}

	if p.limiter != nil {
		if err := p.limiter.Reset(ctx, email); err != nil {
			p.logger.Warn("resetting sign-in counter", "client", clientID, "err", err)
		}
	}

	p.metrics.Inc(MetricSignInSuccess)
	p.emitAudit(ctx, AuditEvent{
		EventType: AuditSignInSuccess,
		ClientID:  clientID,
		Email:     adopted.Email,
		Role:      adopted.Role,
		IP:        ip,
		Success:   true,
		Metadata:  map[string]string{"method": "password"},
	})
	return adopted, nil
}

// SignInWithToken verifies an ID token from the identity service and records
// its session on clientID's store.
func (p *Portal) SignInWithToken(ctx context.Context, clientID, token string, remember bool) (session.Session, error) {
	if p.verifier == nil {
		return session.Session{}, ErrTokenSignInDisabled
	}
	if !ValidClientID(clientID) {
		return session.Session{}, ErrInvalidClientID
	}

	ip := ClientIPFromContext(ctx)
	sess, err := p.verifier.Verify(token)
	if err != nil {
		p.metrics.Inc(MetricTokenSignInFailure)
		p.logger.Info("id token rejected", "client", clientID, "err", err)
		p.emitAudit(ctx, AuditEvent{
			EventType: AuditSignInFailure,
			ClientID:  clientID,
			IP:        ip,
			Error:     err.Error(),
			Metadata:  map[string]string{"method": "token"},
		})
		return session.Session{}, ErrInvalidCredentials
	}

	adopted, err := p.adopt(ctx, clientID, sess, remember)
	if err != nil {
		return session.Session{}, err
	}

	p.metrics.Inc(MetricTokenSignInSuccess)
	p.emitAudit(ctx, AuditEvent{
		EventType: AuditSignInSuccess,
		ClientID:  clientID,
		Email:     adopted.Email,
		Role:      adopted.Role,
		IP:        ip,
		Success:   true,
		Metadata:  map[string]string{"method": "token"},
	})
	return adopted, nil
}

func (p *Portal) adopt(ctx context.Context, clientID string, sess session.Session, remember bool) (session.Session, error) {
	store, err := p.Client(ctx, clientID)
	if err != nil {
		return session.Session{}, err
	}
	if err := store.Login(ctx, sess, remember); err != nil {
		if errors.Is(err, session.ErrStoreClosed) {
			return session.Session{}, ErrPortalClosed
		}
		return session.Session{}, err
	}
	adopted, ok := store.Current()
	if !ok {
		// Only reachable if another request logged out in between.
		return session.Session{}, ErrInvalidCredentials
	}
	return adopted, nil
}

// SignOut ends clientID's session and deletes its remembered record.
func (p *Portal) SignOut(ctx context.Context, clientID string) error {
	store, err := p.Client(ctx, clientID)
	if err != nil {
		return err
	}
	store.Logout(ctx)
	return nil
}

// Activity forwards a presence signal to clientID's store. It reports
// whether the client is known; unknown clients are not created.
func (p *Portal) Activity(clientID string, a session.Activity) bool {
	p.mu.Lock()
	c, ok := p.clients[clientID]
	if ok && !p.closed {
		c.lastSeen = p.clock.Now()
	}
	closed := p.closed
	p.mu.Unlock()

	if !ok || closed {
		return false
	}
	c.feed.Publish(a)
	return true
}

// Authorize evaluates a navigation to path using the role matrix.
func (p *Portal) Authorize(ctx context.Context, clientID, path string) guard.Decision {
	return p.Evaluate(ctx, clientID, p.matrix.Allowed(path))
}

// RoleMatrix returns the route to roles matrix used by Authorize.
func (p *Portal) RoleMatrix() guard.Matrix { return p.matrix }

// AllowedRoles returns the matrix allow-list for path.
func (p *Portal) AllowedRoles(path string) guard.RoleSet {
	return p.matrix.Allowed(path)
}

// Evaluate runs the guard for clientID against an explicit allow-list. When
// another request is still loading the client's remembered record, the
// decision is RenderNothing rather than a premature redirect.
func (p *Portal) Evaluate(ctx context.Context, clientID string, allowed guard.RoleSet) guard.Decision {
	start := time.Now()
	defer func() {
		p.metrics.Observe(MetricAuthorizeLatency, time.Since(start))
	}()

	var (
		current *session.Session
		loading bool
		c       *client
		err     error
	)

	// A client ID issued on this very request cannot have a record yet.
	if !newClientFromContext(ctx) {
		c, err = p.peek(ctx, clientID)
	}
	if err == nil && c != nil {
		if c.initMu.TryLock() {
			c.store.Init(ctx)
			c.initMu.Unlock()
		}
		loading = c.store.Loading()
		if s, ok := c.store.Current(); ok {
			current = &s
		}
	}

	d := p.guard.Evaluate(current, loading, allowed)
	switch {
	case d.Outcome == guard.RenderNothing:
		p.metrics.Inc(MetricAuthorizePending)
	case d.Outcome == guard.RenderTarget:
		p.metrics.Inc(MetricAuthorizeRender)
	case d.PreserveOrigin:
		p.metrics.Inc(MetricAuthorizeSignInRedirect)
	default:
		p.metrics.Inc(MetricAuthorizeRoleRedirect)
	}
	return d
}

// Sweep drops logged-out client stores not seen since now-ClientTTL and
// returns how many were dropped. Persisted records are not touched.
func (p *Portal) Sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	dropped := 0
	for id, c := range p.clients {
		if now.Sub(c.lastSeen) < p.config.Session.ClientTTL {
			continue
		}
		if c.store.State() == session.StateLoggedIn {
			continue
		}
		c.store.Close()
		delete(p.clients, id)
		dropped++
	}
	if dropped > 0 {
		for i := 0; i < dropped; i++ {
			p.metrics.Inc(MetricClientSwept)
		}
		p.logger.Debug("swept idle clients", "dropped", dropped, "remaining", len(p.clients))
	}
	return dropped
}

func (p *Portal) startSweeper() {
	interval := p.config.Session.SweepInterval
	if interval <= 0 {
		return
	}
	p.stopSweep = make(chan struct{})
	p.sweepDone = make(chan struct{})

	go func() {
		defer close(p.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Sweep(p.clock.Now())
			case <-p.stopSweep:
				return
			}
		}
	}()
}

// Close stops the sweeper, closes every client store and flushes the audit
// dispatcher. Persisted records are left in place so remembered sessions
// survive a restart.
func (p *Portal) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	clients := p.clients
	p.clients = make(map[string]*client)
	p.mu.Unlock()

	if p.stopSweep != nil {
		close(p.stopSweep)
		<-p.sweepDone
	}
	for _, c := range clients {
		c.store.Close()
	}
	p.audit.Close()
}

// Metrics returns the portal's live metrics.
func (p *Portal) Metrics() *Metrics { return p.metrics }

// MetricsSnapshot copies the current metrics for exporters.
func (p *Portal) MetricsSnapshot() MetricsSnapshot { return p.metrics.Snapshot() }

// AuditDropped reports audit events dropped under backpressure.
func (p *Portal) AuditDropped() uint64 { return p.audit.Dropped() }

// AuditDroppedByType breaks AuditDropped down by AuditEvent.EventType.
func (p *Portal) AuditDroppedByType() map[string]uint64 { return p.audit.DroppedByType() }

func (p *Portal) onSessionEvent(clientID string, e session.Event) {
	ev := AuditEvent{
		Timestamp: e.At,
		ClientID:  clientID,
		Email:     e.Session.Email,
		Role:      e.Session.Role,
		Success:   e.Err == nil,
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}

	switch e.Kind {
	case session.EventRestored:
		p.metrics.Inc(MetricSessionRestored)
		ev.EventType = AuditSessionRestored
	case session.EventLogin:
		p.metrics.Inc(MetricSessionLogin)
		if e.Remembered {
			p.metrics.Inc(MetricSessionRemembered)
		}
		ev.EventType = AuditLogin
		ev.Metadata = map[string]string{"remember": fmt.Sprint(e.Remembered)}
	case session.EventLogout:
		p.metrics.Inc(MetricLogout)
		ev.EventType = AuditLogout
	case session.EventIdleTimeout:
		p.metrics.Inc(MetricIdleTimeout)
		ev.EventType = AuditIdleTimeout
	case session.EventRecordDiscarded:
		p.metrics.Inc(MetricRecordDiscarded)
		ev.EventType = AuditRecordDiscarded
	case session.EventStorageError:
		p.metrics.Inc(MetricStorageError)
		ev.EventType = AuditStorageError
	default:
		return
	}
	p.emitAudit(context.Background(), ev)
}

func (p *Portal) signInFailed(ctx context.Context, clientID, email, ip string, err error) {
	p.metrics.Inc(MetricSignInFailure)
	p.emitAudit(ctx, AuditEvent{
		EventType: AuditSignInFailure,
		ClientID:  clientID,
		Email:     email,
		IP:        ip,
		Error:     err.Error(),
		Metadata:  map[string]string{"method": "password"},
	})
}

func (p *Portal) throttleError(ctx context.Context, clientID, email, ip string, err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		p.metrics.Inc(MetricSignInRateLimited)
		p.emitAudit(ctx, AuditEvent{
			EventType: AuditSignInRateLimited,
			ClientID:  clientID,
			Email:     email,
			IP:        ip,
			Error:     ErrSignInRateLimited.Error(),
		})
		return ErrSignInRateLimited
	}
	p.logger.Error("sign-in throttle unavailable", "client", clientID, "err", err)
	return fmt.Errorf("%w: %v", ErrSignInUnavailable, err)
}

func (p *Portal) emitAudit(ctx context.Context, ev AuditEvent) {
	if p.audit == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.clock.Now()
	}
	p.audit.Emit(ctx, ev)
}

// ValidClientID reports whether id is usable as a client identifier: 1 to 64
// ASCII letters, digits, '-' or '_'.
func ValidClientID(id string) bool {
	if id == "" || len(id) > maxClientIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
