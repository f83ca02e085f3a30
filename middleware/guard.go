package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrEthical07/hrdesk"
	"github.com/MrEthical07/hrdesk/guard"
	"github.com/MrEthical07/hrdesk/session"
)

// GuardRoutes authorizes every request path against the portal's role
// matrix. It must run beneath ClientID.
func GuardRoutes(portal *hrdesk.Portal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := ClientIDFromContext(r.Context())
			enforce(portal, w, r, next, id, portal.Authorize(r.Context(), id, r.URL.Path))
		})
	}
}

// Guard authorizes requests against a fixed role allow-list. With no roles
// any signed-in user passes.
func Guard(portal *hrdesk.Portal, roles ...string) func(http.Handler) http.Handler {
	allowed := guard.Roles(roles...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := ClientIDFromContext(r.Context())
			enforce(portal, w, r, next, id, portal.Evaluate(r.Context(), id, allowed))
		})
	}
}

// SessionFromContext returns the session of a request that passed a guard.
func SessionFromContext(r *http.Request) (session.Session, bool) {
	store, ok := session.FromContext(r.Context())
	if !ok {
		return session.Session{}, false
	}
	return store.Current()
}

func enforce(portal *hrdesk.Portal, w http.ResponseWriter, r *http.Request, next http.Handler, id string, d guard.Decision) {
	switch d.Outcome {
	case guard.RenderTarget:
		store, err := portal.Client(r.Context(), id)
		if err != nil {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		// Reaching a page counts as presence.
		portal.Activity(id, session.ActivityPointerDown)
		next.ServeHTTP(w, r.WithContext(session.WithStore(r.Context(), store)))

	case guard.RenderNothing:
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusNoContent)

	default:
		location := d.Location(r.URL.RequestURI())
		if wantsJSON(r) {
			status, code := http.StatusForbidden, "forbidden"
			if d.PreserveOrigin {
				status, code = http.StatusUnauthorized, "unauthenticated"
			}
			writeJSON(w, status, map[string]string{"error": code, "location": location})
			return
		}
		http.Redirect(w, r, location, http.StatusFound)
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
