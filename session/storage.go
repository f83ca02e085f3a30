package session

import "context"

// Storage is the durable string key-value store holding persisted session
// records. Get reports ok=false when the key is absent.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
