package hrdesk

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Portal uses it
// for per-IP sign-in throttling and audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// ClientIPFromContext returns the IP attached by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

type newClientContextKey struct{}

// WithNewClient marks ctx as carrying a client ID issued on this request, so
// authorization skips the storage lookup for a record that cannot exist.
func WithNewClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, newClientContextKey{}, true)
}

func newClientFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	fresh, _ := ctx.Value(newClientContextKey{}).(bool)
	return fresh
}
