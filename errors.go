package hrdesk

import "errors"

var (
	// ErrInvalidCredentials is returned when the email/password pair or the ID
	// token does not identify a user.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSignInRateLimited is returned while an email or client IP is over its
	// failed sign-in budget.
	ErrSignInRateLimited = errors.New("sign-in rate limited")
	// ErrSignInUnavailable is returned when a sign-in dependency fails.
	ErrSignInUnavailable = errors.New("sign-in backend unavailable")
	// ErrPasswordSignInDisabled is returned when no user directory is
	// configured.
	ErrPasswordSignInDisabled = errors.New("password sign-in disabled")
	// ErrTokenSignInDisabled is returned when no token verifier is configured.
	ErrTokenSignInDisabled = errors.New("token sign-in disabled")
	// ErrInvalidClientID is returned for blank or malformed client IDs.
	ErrInvalidClientID = errors.New("invalid client id")
	// ErrPortalClosed is returned after Close.
	ErrPortalClosed = errors.New("portal closed")
)
