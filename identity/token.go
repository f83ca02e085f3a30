package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/hrdesk/session"
)

// SigningMethod selects the ID token algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// ErrInvalidToken wraps every ID token rejection.
var ErrInvalidToken = errors.New("invalid id token")

// TokenConfig configures ID token signing and verification.
//
// For HS256, PrivateKey is the shared secret. For Ed25519, PrivateKey is only
// needed to issue tokens; PublicKey verifies them. Keys may be raw bytes or PEM.
type TokenConfig struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	TTL           time.Duration
	KeyID         string
}

func (c TokenConfig) validate() error {
	if c.Leeway < 0 || c.Leeway > 2*time.Minute {
		return errors.New("invalid leeway configuration")
	}
	switch c.SigningMethod {
	case MethodHS256:
		if len(c.PrivateKey) < 32 {
			return errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case MethodEd25519:
		if len(c.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(c.PrivateKey); err != nil {
				return err
			}
		}
		if len(c.PublicKey) > 0 {
			if _, err := parseEdPublicKey(c.PublicKey); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported signing method %q", c.SigningMethod)
	}
	return nil
}

func (c TokenConfig) method() jwt.SigningMethod {
	if c.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

// IDClaims is the ID token payload.
type IDClaims struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	FName       string `json:"fname,omitempty"`
	LName       string `json:"lname,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Session maps the claims to a normalized session. The subject becomes the
// UID.
func (c IDClaims) Session() session.Session {
	return session.Session{
		Email:       c.Email,
		DisplayName: c.DisplayName,
		FName:       c.FName,
		LName:       c.LName,
		Name:        c.Name,
		Role:        c.Role,
		UID:         c.Subject,
	}.Normalize()
}

// TokenVerifier verifies ID tokens and converts them into sessions.
type TokenVerifier struct {
	config TokenConfig
	key    any
}

// NewTokenVerifier validates cfg and resolves its verification key.
func NewTokenVerifier(cfg TokenConfig) (*TokenVerifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	v := &TokenVerifier{config: cfg}
	switch cfg.SigningMethod {
	case MethodHS256:
		v.key = cfg.PrivateKey
	default:
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 verification requires a public key")
		}
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		v.key = pub
	}
	return v, nil
}

// Verify checks signature, algorithm, expiry, issuer and audience. A token
// without an email claim is rejected.
func (v *TokenVerifier) Verify(token string) (session.Session, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.config.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(v.config.Leeway))
	}
	if v.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		options = append(options, jwt.WithAudience(v.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &IDClaims{}, func(t *jwt.Token) (any, error) {
		if v.config.KeyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != v.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return v.key, nil
	})
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*IDClaims)
	if !ok || !parsed.Valid {
		return session.Session{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Email) == "" {
		return session.Session{}, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}
	return claims.Session(), nil
}

// TokenIssuer signs ID tokens. The portal uses it only in development mode
// and tests; production tokens come from the identity service.
type TokenIssuer struct {
	config TokenConfig
	key    any
	now    func() time.Time
}

// NewTokenIssuer validates cfg and resolves its signing key. A zero TTL
// defaults to 15 minutes.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	i := &TokenIssuer{config: cfg, now: time.Now}
	switch cfg.SigningMethod {
	case MethodHS256:
		i.key = cfg.PrivateKey
	default:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		i.key = priv
	}
	return i, nil
}

// Issue signs a token describing s.
func (i *TokenIssuer) Issue(s session.Session) (string, error) {
	if !s.Valid() {
		return "", session.ErrInvalidSession
	}
	now := i.now()
	claims := IDClaims{
		Email:       s.Email,
		Name:        s.Name,
		FName:       s.FName,
		LName:       s.LName,
		DisplayName: s.DisplayName,
		Role:        s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UID,
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.TTL)),
		},
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	token := jwt.NewWithClaims(i.config.method(), claims)
	if i.config.KeyID != "" {
		token.Header["kid"] = i.config.KeyID
	}
	return token.SignedString(i.key)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
