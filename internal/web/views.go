package web

import (
	"net/http"

	"github.com/MrEthical07/hrdesk/middleware"
	"github.com/MrEthical07/hrdesk/session"
)

type viewDef struct {
	Name  string
	Title string
}

// views maps guarded paths to templates. Access rules come from the
// portal's role matrix, not from this table.
var views = map[string]viewDef{
	"/":                {Name: "home", Title: "Dashboard"},
	"/profile":         {Name: "profile", Title: "My profile"},
	"/leave":           {Name: "leave", Title: "Leave"},
	"/leave/approvals": {Name: "approvals", Title: "Leave approvals"},
	"/admin":           {Name: "admin", Title: "Administration"},
}

type pageData struct {
	Title      string
	Session    session.Session
	Remembered bool
	IdleSecs   int
	Error      string
	From       string
	Email      string
	SignInPath string
}

func (s *Server) view(v viewDef) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := middleware.SessionFromContext(r)
		if !ok {
			// The guard rendered, then the session ended before we read it.
			http.Redirect(w, r, s.portal.Guard().SignInPath(), http.StatusFound)
			return
		}
		store := session.MustFromContext(r.Context())
		left, _ := store.ExpiresIn()

		s.render(w, http.StatusOK, v.Name, pageData{
			Title:      v.Title,
			Session:    sess,
			Remembered: store.Remembered(),
			IdleSecs:   int(left.Seconds()),
		})
	})
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("render page", "page", name, "err", err)
	}
}
