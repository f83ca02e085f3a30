package web

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/hrdesk/middleware"
	"github.com/MrEthical07/hrdesk/session"
)

type sessionResponse struct {
	State          string    `json:"state"`
	User           *userView `json:"user,omitempty"`
	Remembered     bool      `json:"remembered"`
	ExpiresInSecs  int       `json:"expiresInSeconds,omitempty"`
	IdleTimeoutSec int       `json:"idleTimeoutSeconds"`
}

func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.ClientIDFromContext(r.Context())
	store, err := s.portal.Peek(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}

	resp := sessionResponse{
		State:          store.State().String(),
		IdleTimeoutSec: int(store.IdleTimeout().Seconds()),
	}
	if sess, ok := store.Current(); ok {
		u := newUserView(sess)
		resp.User = &u
		resp.Remembered = store.Remembered()
		if left, ok := store.ExpiresIn(); ok {
			resp.ExpiresInSecs = int(left.Seconds())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type activityRequest struct {
	Kind string `json:"kind"`
}

// activity accepts presence beacons from the browser. Unknown clients are
// ignored so beacons cannot create stores.
func (s *Server) activity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req activityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed body"})
		return
	}
	a, ok := session.ParseActivity(req.Kind)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown activity kind"})
		return
	}

	id, _ := middleware.ClientIDFromContext(r.Context())
	s.portal.Activity(id, a)
	w.WriteHeader(http.StatusNoContent)
}
