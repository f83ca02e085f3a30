package hrdesk

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/hrdesk/identity"
	"github.com/MrEthical07/hrdesk/session"
)

// Config is the full portal configuration. Start from [DefaultConfig] and
// override fields; [Builder.Build] validates the result.
type Config struct {
	Session        SessionConfig
	Routes         RoutesConfig
	Identity       IdentityConfig
	Password       PasswordConfig
	SignInThrottle ThrottleConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	Cookie         CookieConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls per-client session stores.
type SessionConfig struct {
	// StorageKey prefixes every persisted record key: <StorageKey>:<clientID>.
	StorageKey string
	// IdleTimeout logs a client out after this long without activity.
	IdleTimeout time.Duration
	// RememberFor caps the lifetime of remembered records in Redis. Zero
	// keeps them until logout.
	RememberFor time.Duration
	// RedisPrefix namespaces records when Redis is the storage backend.
	RedisPrefix    string
	StorageTimeout time.Duration
	// ClientTTL is how long a logged-out client store is kept after its last
	// request before Sweep drops it.
	ClientTTL     time.Duration
	SweepInterval time.Duration
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig holds guard destinations and the role matrix. Rules maps a
// path prefix to the roles allowed under it; paths without a rule need only
// a session.
type RoutesConfig struct {
	SignInPath  string
	LandingPath string
	Rules       map[string][]string
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityConfig enables sign-in with ID tokens from an external identity
// service.
type IdentityConfig struct {
	TokenSignIn   bool
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig sets Argon2id costs for directory password hashes.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
THROTTLE / AUDIT / METRICS
====================================
*/

// ThrottleConfig tunes failed sign-in throttling. It requires Redis.
type ThrottleConfig struct {
	Enabled          bool
	EnableIPThrottle bool
	MaxAttempts      int
	Window           time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the authorize latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig describes the client ID cookie.
type CookieConfig struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			StorageKey:     "user",
			IdleTimeout:    session.DefaultIdleTimeout,
			RememberFor:    30 * 24 * time.Hour,
			RedisPrefix:    "hrdesk",
			StorageTimeout: 2 * time.Second,
			ClientTTL:      2 * time.Hour,
			SweepInterval:  5 * time.Minute,
		},
		Routes: RoutesConfig{
			SignInPath:  "/signin",
			LandingPath: "/",
			Rules: map[string][]string{
				"/admin":           {"ADMIN"},
				"/leave/approvals": {"ADMIN", "HR", "MANAGER"},
			},
		},
		Identity: IdentityConfig{
			TokenSignIn:   false,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		SignInThrottle: ThrottleConfig{
			Enabled:          false,
			EnableIPThrottle: true,
			MaxAttempts:      5,
			Window:           15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Cookie: CookieConfig{
			Name:     "hrdesk_client",
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   365 * 24 * time.Hour,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Identity.PrivateKey = cloneBytes(cfg.Identity.PrivateKey)
	out.Identity.PublicKey = cloneBytes(cfg.Identity.PublicKey)
	if cfg.Routes.Rules != nil {
		out.Routes.Rules = make(map[string][]string, len(cfg.Routes.Rules))
		for prefix, roles := range cfg.Routes.Rules {
			out.Routes.Rules[prefix] = append([]string(nil), roles...)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) hasherConfig() identity.HasherConfig {
	return identity.HasherConfig{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

// TokenConfig converts the identity settings for the identity package.
func (c IdentityConfig) TokenConfig() identity.TokenConfig {
	return identity.TokenConfig{
		SigningMethod: identity.SigningMethod(c.SigningMethod),
		PrivateKey:    cloneBytes(c.PrivateKey),
		PublicKey:     cloneBytes(c.PublicKey),
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
		KeyID:         c.KeyID,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Session
	if strings.TrimSpace(c.Session.StorageKey) == "" {
		return errors.New("Session StorageKey must not be empty")
	}
	if strings.Contains(c.Session.StorageKey, ":") {
		return errors.New("Session StorageKey must not contain ':'")
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session IdleTimeout must be > 0")
	}
	if c.Session.RememberFor < 0 {
		return errors.New("Session RememberFor must be >= 0")
	}
	if c.Session.RememberFor > 0 && c.Session.RememberFor < c.Session.IdleTimeout {
		return errors.New("Session RememberFor must be >= IdleTimeout when set")
	}
	if c.Session.StorageTimeout <= 0 {
		return errors.New("Session StorageTimeout must be > 0")
	}
	if c.Session.ClientTTL <= 0 {
		return errors.New("Session ClientTTL must be > 0")
	}
	if c.Session.SweepInterval < 0 {
		return errors.New("Session SweepInterval must be >= 0")
	}

	// Routes
	if !strings.HasPrefix(c.Routes.SignInPath, "/") {
		return errors.New("Routes SignInPath must be an absolute path")
	}
	if !strings.HasPrefix(c.Routes.LandingPath, "/") {
		return errors.New("Routes LandingPath must be an absolute path")
	}
	if c.Routes.SignInPath == c.Routes.LandingPath {
		return errors.New("Routes SignInPath and LandingPath must differ")
	}
	for prefix, roles := range c.Routes.Rules {
		if strings.TrimSpace(prefix) == "" {
			return errors.New("Routes rule prefix must not be empty")
		}
		if len(roles) == 0 {
			return errors.New("Routes rule " + prefix + " must list at least one role")
		}
		if strings.HasPrefix(c.Routes.SignInPath, strings.TrimRight(prefix, "/")+"/") || c.Routes.SignInPath == prefix {
			return errors.New("Routes rule " + prefix + " must not cover SignInPath")
		}
	}

	// Identity
	if c.Identity.TokenSignIn {
		if c.Identity.SigningMethod != "ed25519" && c.Identity.SigningMethod != "hs256" {
			return errors.New("unsupported Identity SigningMethod")
		}
		if c.Identity.SigningMethod == "ed25519" && len(c.Identity.PublicKey) == 0 {
			return errors.New("ed25519 token sign-in requires PublicKey")
		}
		if c.Identity.SigningMethod == "hs256" && len(c.Identity.PrivateKey) == 0 {
			return errors.New("hs256 token sign-in requires PrivateKey")
		}
		if c.Identity.Audience != "" && strings.TrimSpace(c.Identity.Audience) == "" {
			return errors.New("Identity Audience must not be blank")
		}
	}
	if c.Identity.Leeway < 0 || c.Identity.Leeway > 2*time.Minute {
		return errors.New("Identity Leeway must be between 0 and 2m")
	}

	// Password
	if err := c.Password.hasherConfig().Validate(); err != nil {
		return err
	}

	// Throttle
	if c.SignInThrottle.Enabled {
		if c.SignInThrottle.MaxAttempts <= 0 {
			return errors.New("SignInThrottle MaxAttempts must be > 0")
		}
		if c.SignInThrottle.Window <= 0 {
			return errors.New("SignInThrottle Window must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Cookie
	if strings.TrimSpace(c.Cookie.Name) == "" {
		return errors.New("Cookie Name must not be empty")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return errors.New("Cookie SameSite=None requires Secure")
	}

	return nil
}
