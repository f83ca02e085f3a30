package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"

	"github.com/MrEthical07/hrdesk"
)

type clientIDContextKey struct{}

// ClientIDFromContext returns the client ID attached by ClientID.
func ClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientIDContextKey{}).(string)
	return id, ok && id != ""
}

// ClientID identifies the browser behind each request by a long-lived cookie,
// issuing a fresh random ID when the cookie is missing or malformed. It also
// attaches the remote IP for throttling and audit.
func ClientID(portal *hrdesk.Portal) func(http.Handler) http.Handler {
	cookie := portal.Config().Cookie

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(cookie.Name); err == nil && hrdesk.ValidClientID(c.Value) {
				id = c.Value
			}
			ctx := r.Context()
			if id == "" {
				id = uuid.NewString()
				ctx = hrdesk.WithNewClient(ctx)
				http.SetCookie(w, &http.Cookie{
					Name:     cookie.Name,
					Value:    id,
					Path:     "/",
					MaxAge:   int(cookie.MaxAge.Seconds()),
					HttpOnly: true,
					Secure:   cookie.Secure,
					SameSite: cookie.SameSite,
				})
			}

			ctx = context.WithValue(ctx, clientIDContextKey{}, id)
			ctx = hrdesk.WithClientIP(ctx, remoteIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
