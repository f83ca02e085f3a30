package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrEthical07/hrdesk/session"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
// The two cases are indistinguishable to callers.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Provider authenticates a user and returns the session to record.
type Provider interface {
	Authenticate(ctx context.Context, email, password string) (session.Session, error)
}

// User is a directory entry.
type User struct {
	Email        string `toml:"email"`
	PasswordHash string `toml:"password_hash"`
	FName        string `toml:"fname"`
	LName        string `toml:"lname"`
	DisplayName  string `toml:"display_name"`
	Role         string `toml:"role"`
	UID          string `toml:"uid"`
}

func (u User) session() session.Session {
	uid := u.UID
	if uid == "" {
		uid = u.Email
	}
	return session.Session{
		Email:       u.Email,
		DisplayName: u.DisplayName,
		FName:       u.FName,
		LName:       u.LName,
		Role:        u.Role,
		UID:         uid,
	}.Normalize()
}

// Directory is an in-memory user directory keyed by lowercased email.
type Directory struct {
	hasher *Argon2
	dummy  string

	mu    sync.RWMutex
	users map[string]User
}

// NewDirectory builds a Directory. Every user must carry an email and a
// parseable password hash.
func NewDirectory(hasher *Argon2, users ...User) (*Directory, error) {
	if hasher == nil {
		return nil, errors.New("identity: hasher is required")
	}
	dummy, err := hasher.Hash("directory-timing-equalizer")
	if err != nil {
		return nil, err
	}

	d := &Directory{
		hasher: hasher,
		dummy:  dummy,
		users:  make(map[string]User, len(users)),
	}
	for _, u := range users {
		if err := d.Put(u); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Put adds or replaces a user.
func (d *Directory) Put(u User) error {
	key := emailKey(u.Email)
	if key == "" {
		return errors.New("identity: user email is required")
	}
	if _, err := parsePHC(u.PasswordHash); err != nil {
		return fmt.Errorf("identity: user %s: %w", key, err)
	}
	u.Email = strings.TrimSpace(u.Email)

	d.mu.Lock()
	d.users[key] = u
	d.mu.Unlock()
	return nil
}

// Len returns the number of users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// Authenticate verifies email and password. Unknown emails still pay for one
// hash verification so response time does not reveal membership.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, err
	}

	d.mu.RLock()
	u, ok := d.users[emailKey(email)]
	d.mu.RUnlock()

	hash := d.dummy
	if ok {
		hash = u.PasswordHash
	}
	match, err := d.hasher.Verify(password, hash)
	if err != nil {
		return session.Session{}, err
	}
	if !ok || !match {
		return session.Session{}, ErrInvalidCredentials
	}
	return u.session(), nil
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
