package session

import (
	"strings"
)

// DefaultRole is assigned to sessions whose role is absent.
const DefaultRole = "USER"

// Session is the authenticated principal as known to the portal.
type Session struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	FName       string `json:"fname,omitempty"`
	LName       string `json:"lname,omitempty"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	UID         string `json:"uid,omitempty"`
}

// Valid reports whether s carries an email. Sessions without one are never
// adopted.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.Email) != ""
}

// Normalize returns s with its role canonicalized and its display name
// resolved. Display name precedence: DisplayName, "FName LName", Name, then
// the local part of Email.
func (s Session) Normalize() Session {
	s.Email = strings.TrimSpace(s.Email)
	s.Role = NormalizeRole(s.Role)
	s.DisplayName = displayName(s)
	return s
}

// NormalizeRole uppercases role and substitutes [DefaultRole] when blank.
func NormalizeRole(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return DefaultRole
	}
	return role
}

func displayName(s Session) string {
	if v := strings.TrimSpace(s.DisplayName); v != "" {
		return v
	}
	full := strings.TrimSpace(strings.TrimSpace(s.FName) + " " + strings.TrimSpace(s.LName))
	if full != "" {
		return full
	}
	if v := strings.TrimSpace(s.Name); v != "" {
		return v
	}
	local, _, _ := strings.Cut(s.Email, "@")
	return local
}

// State is the lifecycle position of a [Store].
type State uint8

const (
	// StateUninitialized means Init has not completed; readers should treat
	// the session as still loading.
	StateUninitialized State = iota
	StateLoggedOut
	StateLoggedIn
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoggedOut:
		return "logged_out"
	case StateLoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}
