package hrdesk

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/hrdesk/guard"
	"github.com/MrEthical07/hrdesk/identity"
	"github.com/MrEthical07/hrdesk/internal/clock"
	"github.com/MrEthical07/hrdesk/internal/rate"
	"github.com/MrEthical07/hrdesk/session"
	"github.com/MrEthical07/hrdesk/storage"
)

// Builder assembles a Portal. A Builder is single-use.
type Builder struct {
	config  Config
	redis   redis.UniversalClient
	storage session.Storage

	directory identity.Provider
	users     []identity.User
	verifier  *identity.TokenVerifier

	auditSink AuditSink
	logger    *slog.Logger
	clock     clock.Clock

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for session records (unless
// WithStorage overrides it) and for sign-in throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStorage sets the session record backend.
func (b *Builder) WithStorage(s session.Storage) *Builder {
	b.storage = s
	return b
}

// WithDirectory sets the password sign-in provider.
func (b *Builder) WithDirectory(p identity.Provider) *Builder {
	b.directory = p
	return b
}

// WithUsers builds an in-memory directory hashed with Config.Password costs.
// It is ignored when WithDirectory is also used.
func (b *Builder) WithUsers(users ...identity.User) *Builder {
	b.users = append(b.users, users...)
	return b
}

// WithTokenVerifier sets the ID token verifier, replacing the one that
// Config.Identity would build.
func (b *Builder) WithTokenVerifier(v *identity.TokenVerifier) *Builder {
	b.verifier = v
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces the wall clock driving idle timers and sweeps.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and starts the portal. The returned
// Portal must be closed.
func (b *Builder) Build() (*Portal, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := b.clock
	if clk == nil {
		clk = clock.System()
	}

	// -------- SESSION STORAGE --------
	records := b.storage
	if records == nil {
		if b.redis != nil {
			records = storage.NewRedis(b.redis, cfg.Session.RedisPrefix, cfg.Session.RememberFor)
		} else {
			logger.Warn("no session storage configured, remembered sessions will not survive a restart")
			records = storage.NewMemory()
		}
	}

	// -------- IDENTITY --------
	directory := b.directory
	if directory == nil && len(b.users) > 0 {
		hasher, err := identity.NewArgon2(cfg.Password.hasherConfig())
		if err != nil {
			return nil, err
		}
		d, err := identity.NewDirectory(hasher, b.users...)
		if err != nil {
			return nil, err
		}
		directory = d
	}

	verifier := b.verifier
	if verifier == nil && cfg.Identity.TokenSignIn {
		v, err := identity.NewTokenVerifier(cfg.Identity.TokenConfig())
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	if directory == nil && verifier == nil {
		return nil, errors.New("a user directory or token verifier is required")
	}

	// -------- THROTTLE --------
	var limiter *rate.Limiter
	if cfg.SignInThrottle.Enabled {
		if b.redis == nil {
			return nil, errors.New("SignInThrottle requires redis client")
		}
		limiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.SignInThrottle.EnableIPThrottle,
			MaxAttempts:      cfg.SignInThrottle.MaxAttempts,
			Window:           cfg.SignInThrottle.Window,
		})
	}

	p := &Portal{
		config:    cfg,
		storage:   records,
		directory: directory,
		verifier:  verifier,
		limiter:   limiter,
		guard: guard.New(
			guard.WithSignInPath(cfg.Routes.SignInPath),
			guard.WithLandingPath(cfg.Routes.LandingPath),
		),
		matrix:  guard.NewMatrix(cfg.Routes.Rules),
		clock:   clk,
		logger:  logger,
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		metrics: NewMetrics(cfg.Metrics),
		clients: make(map[string]*client),
	}
	p.startSweeper()

	b.built = true

	return p, nil
}
