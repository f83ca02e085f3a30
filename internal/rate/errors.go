package rate

import "errors"

var (
	// ErrRateLimited is returned once an email or IP exhausts its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
