package web

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MrEthical07/hrdesk"
	"github.com/MrEthical07/hrdesk/middleware"
)

// Server holds the handlers' dependencies.
type Server struct {
	portal  *hrdesk.Portal
	logger  *slog.Logger
	pages   *template.Template
	metrics http.Handler
	health  func(context.Context) error
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHealthCheck makes /healthz report fn's error as 503.
func WithHealthCheck(fn func(context.Context) error) Option {
	return func(s *Server) { s.health = fn }
}

func New(portal *hrdesk.Portal, opts ...Option) *Server {
	s := &Server{
		portal: portal,
		logger: slog.Default(),
		pages:  template.Must(template.New("pages").Parse(pageTemplates)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed application.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	app := r.PathPrefix("/").Subrouter()
	app.Use(middleware.ClientID(s.portal))

	app.HandleFunc("/signin", s.signInPage).Methods(http.MethodGet)
	app.HandleFunc("/signin", s.signIn).Methods(http.MethodPost)
	app.HandleFunc("/signout", s.signOut).Methods(http.MethodPost)
	app.HandleFunc("/api/session", s.sessionState).Methods(http.MethodGet)
	app.HandleFunc("/api/activity", s.activity).Methods(http.MethodPost)

	guarded := middleware.GuardRoutes(s.portal)
	for path, view := range views {
		app.Handle(path, guarded(s.view(view))).Methods(http.MethodGet)
	}

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health check failed", "err", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}
