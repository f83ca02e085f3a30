package web

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrEthical07/hrdesk"
	"github.com/MrEthical07/hrdesk/guard"
	"github.com/MrEthical07/hrdesk/middleware"
	"github.com/MrEthical07/hrdesk/session"
)

const maxBodyBytes = 16 << 10

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IDToken  string `json:"id_token"`
	Remember bool   `json:"remember"`
	From     string `json:"from"`
}

type userView struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	UID         string `json:"uid,omitempty"`
}

func newUserView(s session.Session) userView {
	return userView{Email: s.Email, DisplayName: s.DisplayName, Role: s.Role, UID: s.UID}
}

func (s *Server) signInPage(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.ClientIDFromContext(r.Context())
	from := s.safeFrom(r.URL.Query().Get(guard.OriginParam))

	if store, err := s.portal.Peek(r.Context(), id); err == nil {
		if _, ok := store.Current(); ok {
			http.Redirect(w, r, from, http.StatusFound)
			return
		}
	}

	s.render(w, http.StatusOK, "signin", pageData{
		Title:      "Sign in",
		From:       from,
		SignInPath: s.portal.Guard().SignInPath(),
	})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	asJSON := isJSON(r)
	req, err := decodeSignIn(w, r, asJSON)
	if err != nil {
		s.signInFailed(w, r, asJSON, req, http.StatusBadRequest, "Malformed sign-in request.")
		return
	}

	id, _ := middleware.ClientIDFromContext(r.Context())
	var sess session.Session
	if req.IDToken != "" {
		sess, err = s.portal.SignInWithToken(r.Context(), id, req.IDToken, req.Remember)
	} else {
		sess, err = s.portal.SignIn(r.Context(), id, hrdesk.Credentials{
			Email:    req.Email,
			Password: req.Password,
			Remember: req.Remember,
		})
	}
	if err != nil {
		status, msg := signInStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("sign-in failed", "client", id, "err", err)
		}
		s.signInFailed(w, r, asJSON, req, status, msg)
		return
	}

	dest := s.safeFrom(req.From)
	if asJSON {
		writeJSON(w, http.StatusOK, map[string]any{
			"location": dest,
			"user":     newUserView(sess),
		})
		return
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

func (s *Server) signInFailed(w http.ResponseWriter, r *http.Request, asJSON bool, req signInRequest, status int, msg string) {
	if asJSON {
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}
	s.render(w, status, "signin", pageData{
		Title:      "Sign in",
		Error:      msg,
		Email:      req.Email,
		From:       s.safeFrom(req.From),
		SignInPath: s.portal.Guard().SignInPath(),
	})
}

func signInStatus(err error) (int, string) {
	switch {
	case errors.Is(err, hrdesk.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Incorrect email or password."
	case errors.Is(err, hrdesk.ErrSignInRateLimited):
		return http.StatusTooManyRequests, "Too many attempts. Try again later."
	case errors.Is(err, hrdesk.ErrPasswordSignInDisabled), errors.Is(err, hrdesk.ErrTokenSignInDisabled):
		return http.StatusBadRequest, "This sign-in method is not available."
	case errors.Is(err, hrdesk.ErrInvalidClientID):
		return http.StatusBadRequest, "Malformed sign-in request."
	default:
		return http.StatusServiceUnavailable, "Sign-in is temporarily unavailable."
	}
}

func decodeSignIn(w http.ResponseWriter, r *http.Request, asJSON bool) (signInRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req signInRequest
	if asJSON {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Email = r.PostForm.Get("email")
	req.Password = r.PostForm.Get("password")
	req.IDToken = r.PostForm.Get("id_token")
	req.From = r.PostForm.Get("from")
	req.Remember, _ = strconv.ParseBool(r.PostForm.Get("remember"))
	if r.PostForm.Get("remember") == "on" {
		req.Remember = true
	}
	return req, nil
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.ClientIDFromContext(r.Context())
	if err := s.portal.SignOut(r.Context(), id); err != nil {
		s.logger.Warn("sign-out failed", "client", id, "err", err)
	}
	if isJSON(r) || wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, s.portal.Guard().SignInPath(), http.StatusSeeOther)
}

// safeFrom returns from when it is a local path other than the sign-in page,
// and the landing path otherwise.
func (s *Server) safeFrom(from string) string {
	g := s.portal.Guard()
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return g.LandingPath()
	}
	u, err := url.Parse(from)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == g.SignInPath() {
		return g.LandingPath()
	}
	return u.RequestURI()
}

func isJSON(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/json"
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
