package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/MrEthical07/hrdesk"
	"github.com/MrEthical07/hrdesk/identity"
)

// Storage backends.
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendMiniredis = "miniredis"
	BackendSQLite    = "sqlite"
)

// Duration is a time.Duration written as a Go duration string ("30m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the server configuration file.
type Config struct {
	Server   ServerConfig        `toml:"server"`
	Log      LogConfig           `toml:"log"`
	Storage  StorageConfig       `toml:"storage"`
	Session  SessionConfig       `toml:"session"`
	Routes   RoutesConfig        `toml:"routes"`
	Identity IdentityConfig      `toml:"identity"`
	Throttle ThrottleConfig      `toml:"throttle"`
	Audit    AuditConfig         `toml:"audit"`
	Cookie   CookieConfig        `toml:"cookie"`
	Users    []identity.User     `toml:"users"`
	Rules    map[string][]string `toml:"rules"`
}

type ServerConfig struct {
	Addr              string   `toml:"addr"`
	ReadHeaderTimeout Duration `toml:"read_header_timeout"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

type StorageConfig struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	SQLitePath    string `toml:"sqlite_path"`
}

type SessionConfig struct {
	IdleTimeout   Duration `toml:"idle_timeout"`
	RememberFor   Duration `toml:"remember_for"`
	ClientTTL     Duration `toml:"client_ttl"`
	SweepInterval Duration `toml:"sweep_interval"`
}

type RoutesConfig struct {
	SignInPath  string `toml:"sign_in_path"`
	LandingPath string `toml:"landing_path"`
}

// IdentityConfig configures ID token sign-in. Key files hold PEM keys;
// Secret is used for hs256.
type IdentityConfig struct {
	TokenSignIn    bool     `toml:"token_sign_in"`
	SigningMethod  string   `toml:"signing_method"`
	Secret         string   `toml:"secret"`
	PublicKeyFile  string   `toml:"public_key_file"`
	PrivateKeyFile string   `toml:"private_key_file"`
	Issuer         string   `toml:"issuer"`
	Audience       string   `toml:"audience"`
	Leeway         Duration `toml:"leeway"`
}

type ThrottleConfig struct {
	Enabled     bool     `toml:"enabled"`
	MaxAttempts int      `toml:"max_attempts"`
	Window      Duration `toml:"window"`
}

type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // "-" for stdout
}

type CookieConfig struct {
	Name   string `toml:"name"`
	Secure bool   `toml:"secure"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	d := hrdesk.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{5 * time.Second},
			ShutdownTimeout:   Duration{10 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend:    BackendMemory,
			RedisAddr:  "127.0.0.1:6379",
			SQLitePath: "data/sessions.db",
		},
		Session: SessionConfig{
			IdleTimeout:   Duration{d.Session.IdleTimeout},
			RememberFor:   Duration{d.Session.RememberFor},
			ClientTTL:     Duration{d.Session.ClientTTL},
			SweepInterval: Duration{d.Session.SweepInterval},
		},
		Routes: RoutesConfig{
			SignInPath:  d.Routes.SignInPath,
			LandingPath: d.Routes.LandingPath,
		},
		Identity: IdentityConfig{
			SigningMethod: d.Identity.SigningMethod,
			Leeway:        Duration{d.Identity.Leeway},
		},
		Throttle: ThrottleConfig{
			MaxAttempts: d.SignInThrottle.MaxAttempts,
			Window:      Duration{d.SignInThrottle.Window},
		},
		Cookie: CookieConfig{
			Name:   d.Cookie.Name,
			Secure: d.Cookie.Secure,
		},
		Rules: d.Routes.Rules,
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	// A file that sets [rules] replaces the default matrix instead of
	// merging into it.
	defaults := c.Rules
	c.Rules = nil

	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if !md.IsDefined("rules") {
		c.Rules = defaults
	}
	return nil
}

// ApplyEnv applies HRDESK_* overrides read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("HRDESK_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("HRDESK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("HRDESK_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := getenv("HRDESK_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv("HRDESK_REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := getenv("HRDESK_REDIS_PASSWORD"); v != "" {
		c.Storage.RedisPassword = v
	}
	if v := getenv("HRDESK_SQLITE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	if v := getenv("HRDESK_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HRDESK_IDLE_TIMEOUT: %w", err)
		}
		c.Session.IdleTimeout = Duration{d}
	}
	if v := getenv("HRDESK_TOKEN_SECRET"); v != "" {
		c.Identity.Secret = v
	}
	if v := getenv("HRDESK_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HRDESK_COOKIE_SECURE: %w", err)
		}
		c.Cookie.Secure = b
	}
	if v := getenv("HRDESK_THROTTLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HRDESK_THROTTLE: %w", err)
		}
		c.Throttle.Enabled = b
	}
	return nil
}

// Validate checks the settings owned by the binary. Portal settings are
// validated by hrdesk.Config.Validate when the portal is built.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		return errors.New("server.shutdown_timeout must be > 0")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendMiniredis:
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Throttle.Enabled && c.Storage.Backend != BackendRedis && c.Storage.Backend != BackendMiniredis {
		return errors.New("throttle requires the redis or miniredis backend")
	}
	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if email == "" {
			return fmt.Errorf("users[%d]: email is required", i)
		}
		if seen[email] {
			return fmt.Errorf("users[%d]: duplicate email %s", i, email)
		}
		seen[email] = true
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}

// Portal converts the file into portal settings, reading key files as
// needed.
func (c *Config) Portal() (hrdesk.Config, error) {
	out := hrdesk.DefaultConfig()

	out.Session.IdleTimeout = c.Session.IdleTimeout.Duration
	out.Session.RememberFor = c.Session.RememberFor.Duration
	out.Session.ClientTTL = c.Session.ClientTTL.Duration
	out.Session.SweepInterval = c.Session.SweepInterval.Duration

	out.Routes.SignInPath = c.Routes.SignInPath
	out.Routes.LandingPath = c.Routes.LandingPath
	out.Routes.Rules = make(map[string][]string, len(c.Rules))
	for prefix, roles := range c.Rules {
		out.Routes.Rules[prefix] = append([]string(nil), roles...)
	}

	out.Identity.TokenSignIn = c.Identity.TokenSignIn
	out.Identity.SigningMethod = c.Identity.SigningMethod
	out.Identity.Issuer = c.Identity.Issuer
	out.Identity.Audience = c.Identity.Audience
	out.Identity.Leeway = c.Identity.Leeway.Duration
	if c.Identity.Secret != "" {
		out.Identity.PrivateKey = []byte(c.Identity.Secret)
	}
	if c.Identity.PrivateKeyFile != "" {
		key, err := os.ReadFile(c.Identity.PrivateKeyFile)
		if err != nil {
			return hrdesk.Config{}, fmt.Errorf("read identity private key: %w", err)
		}
		out.Identity.PrivateKey = key
	}
	if c.Identity.PublicKeyFile != "" {
		key, err := os.ReadFile(c.Identity.PublicKeyFile)
		if err != nil {
			return hrdesk.Config{}, fmt.Errorf("read identity public key: %w", err)
		}
		out.Identity.PublicKey = key
	}

	out.SignInThrottle.Enabled = c.Throttle.Enabled
	out.SignInThrottle.MaxAttempts = c.Throttle.MaxAttempts
	out.SignInThrottle.Window = c.Throttle.Window.Duration

	out.Audit.Enabled = c.Audit.Enabled

	out.Cookie.Name = c.Cookie.Name
	out.Cookie.Secure = c.Cookie.Secure

	if err := out.Validate(); err != nil {
		return hrdesk.Config{}, err
	}
	return out, nil
}
