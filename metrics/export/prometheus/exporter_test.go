package prometheus

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/hrdesk"
	"github.com/MrEthical07/hrdesk/identity"
)

type fakeSource struct {
	snapshot hrdesk.MetricsSnapshot
	dropped  uint64
	byType   map[string]uint64
	clients  int
}

func (f fakeSource) MetricsSnapshot() hrdesk.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                    { return f.dropped }
func (f fakeSource) AuditDroppedByType() map[string]uint64   { return f.byType }
func (f fakeSource) Clients() int                            { return f.clients }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: hrdesk.MetricsSnapshot{
			Counters:   map[hrdesk.MetricID]uint64{},
			Histograms: map[hrdesk.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: hrdesk.MetricsSnapshot{
			Counters: map[hrdesk.MetricID]uint64{
				hrdesk.MetricSignInSuccess: 7,
				hrdesk.MetricIdleTimeout:   2,
			},
			Histograms: map[hrdesk.MetricID][]uint64{
				hrdesk.MetricAuthorizeLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
		byType:  map[string]uint64{hrdesk.AuditLogout: 1, hrdesk.AuditIdleTimeout: 1},
		clients: 4,
	})

	out := exp.Render()
	for _, want := range []string{
		"hrdesk_sign_in_success_total 7",
		"hrdesk_idle_timeout_total 2",
		"hrdesk_logout_total 0",
		`hrdesk_authorize_latency_seconds_bucket{le="0.0001"} 1`,
		`hrdesk_authorize_latency_seconds_bucket{le="+Inf"} 36`,
		"hrdesk_authorize_latency_seconds_count 36",
		"hrdesk_audit_dropped_total 2",
		`hrdesk_audit_dropped_by_type_total{event="idle_timeout"} 1` + "\n" + `hrdesk_audit_dropped_by_type_total{event="logout"} 1`,
		"# TYPE hrdesk_clients gauge\nhrdesk_clients 4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: hrdesk.MetricsSnapshot{
			Counters:   map[hrdesk.MetricID]uint64{hrdesk.MetricSignInSuccess: 1},
			Histograms: map[hrdesk.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestExporterReadsPortal(t *testing.T) {
	h, err := identity.NewArgon2(identity.HasherConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	hash, err := h.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	cfg := hrdesk.DefaultConfig()
	cfg.Password = hrdesk.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Session.SweepInterval = 0
	p, err := hrdesk.New().
		WithConfig(cfg).
		WithUsers(identity.User{Email: "hr@corp.example", PasswordHash: hash, Role: "HR"}).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer p.Close()

	if _, err := p.SignIn(context.Background(), "c1", hrdesk.Credentials{Email: "hr@corp.example", Password: "correct-horse-battery"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	p.Authorize(context.Background(), "c1", "/admin")

	out := NewExporter(p).Render()
	for _, want := range []string{
		"hrdesk_sign_in_success_total 1",
		"hrdesk_authorize_role_redirect_total 1",
		"hrdesk_client_created_total 1",
		"hrdesk_clients 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: hrdesk.MetricsSnapshot{
			Counters: map[hrdesk.MetricID]uint64{
				hrdesk.MetricSignInSuccess:   1000,
				hrdesk.MetricSignInFailure:   40,
				hrdesk.MetricSessionRestored: 800,
				hrdesk.MetricAuthorizeRender: 9000,
				hrdesk.MetricIdleTimeout:     20,
			},
			Histograms: map[hrdesk.MetricID][]uint64{
				hrdesk.MetricAuthorizeLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}

func TestEscapeLabel(t *testing.T) {
	if got := escapeLabel("a\"b\\c\nd"); got != `a\"b\\c\nd` {
		t.Fatalf("unexpected escape %q", got)
	}
}
