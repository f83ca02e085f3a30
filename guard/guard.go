package guard

import (
	"net/url"
	"strings"

	"github.com/MrEthical07/hrdesk/session"
)

const (
	// DefaultSignInPath is where unauthenticated navigations are sent.
	DefaultSignInPath = "/signin"
	// DefaultLandingPath is where role-denied navigations are sent.
	DefaultLandingPath = "/"
	// OriginParam carries the intended location through sign-in.
	OriginParam = "from"
)

// Outcome is the result class of an evaluation.
type Outcome uint8

const (
	RenderTarget Outcome = iota
	Redirect
	RenderNothing
)

func (o Outcome) String() string {
	switch o {
	case RenderTarget:
		return "render_target"
	case Redirect:
		return "redirect"
	case RenderNothing:
		return "render_nothing"
	default:
		return "unknown"
	}
}

// Decision is the full result of Evaluate. Path and PreserveOrigin are set
// only for Redirect.
type Decision struct {
	Outcome        Outcome
	Path           string
	PreserveOrigin bool
}

// Location returns the redirect target, carrying origin in the "from" query
// parameter when the decision preserves it.
func (d Decision) Location(origin string) string {
	if d.Outcome != Redirect {
		return ""
	}
	if !d.PreserveOrigin || origin == "" {
		return d.Path
	}
	sep := "?"
	if strings.Contains(d.Path, "?") {
		sep = "&"
	}
	return d.Path + sep + OriginParam + "=" + url.QueryEscape(origin)
}

// Guard evaluates navigations against fixed redirect destinations.
type Guard struct {
	signInPath  string
	landingPath string
}

// Option configures a Guard.
type Option func(*Guard)

// WithSignInPath overrides DefaultSignInPath.
func WithSignInPath(p string) Option {
	return func(g *Guard) {
		if p != "" {
			g.signInPath = p
		}
	}
}

// WithLandingPath overrides DefaultLandingPath.
func WithLandingPath(p string) Option {
	return func(g *Guard) {
		if p != "" {
			g.landingPath = p
		}
	}
}

// New returns a Guard.
func New(opts ...Option) Guard {
	g := Guard{
		signInPath:  DefaultSignInPath,
		landingPath: DefaultLandingPath,
	}
	for _, opt := range opts {
		opt(&g)
	}
	return g
}

// SignInPath returns the configured sign-in path.
func (g Guard) SignInPath() string { return g.signInPath }

// LandingPath returns the configured landing path.
func (g Guard) LandingPath() string { return g.landingPath }

// Evaluate decides the outcome for one navigation. sess is nil when nobody is
// logged in. An empty allowed set admits any authenticated session.
func (g Guard) Evaluate(sess *session.Session, loading bool, allowed RoleSet) Decision {
	if loading {
		return Decision{Outcome: RenderNothing}
	}
	if sess == nil {
		return Decision{Outcome: Redirect, Path: g.signInPath, PreserveOrigin: true}
	}
	if !allowed.Empty() && !allowed.Contains(sess.Role) {
		return Decision{Outcome: Redirect, Path: g.landingPath}
	}
	return Decision{Outcome: RenderTarget}
}

var defaultGuard = New()

// Evaluate runs the default Guard.
func Evaluate(sess *session.Session, loading bool, allowed RoleSet) Decision {
	return defaultGuard.Evaluate(sess, loading, allowed)
}
