package session

import "context"

type storeContextKey struct{}

// WithStore binds s to ctx for downstream handlers.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeContextKey{}, s)
}

// FromContext returns the store bound by WithStore.
func FromContext(ctx context.Context) (*Store, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(storeContextKey{}).(*Store)
	return s, ok && s != nil
}

// MustFromContext returns the bound store and panics with ErrNoStore when the
// caller was not wired beneath a store binding. A missing binding is a
// programming error, not a runtime condition.
func MustFromContext(ctx context.Context) *Store {
	s, ok := FromContext(ctx)
	if !ok {
		panic(ErrNoStore)
	}
	return s
}
