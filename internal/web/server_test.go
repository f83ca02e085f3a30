package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/hrdesk"
	"github.com/MrEthical07/hrdesk/identity"
	"github.com/MrEthical07/hrdesk/internal/clock"
	"github.com/MrEthical07/hrdesk/metrics/export/prometheus"
)

const password = "correct-horse-battery"

type fixture struct {
	portal  *hrdesk.Portal
	clock   *clock.Fake
	handler http.Handler
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	fast := hrdesk.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	hasher, err := identity.NewArgon2(identity.HasherConfig{
		Memory: fast.Memory, Time: fast.Time, Parallelism: fast.Parallelism,
		SaltLength: fast.SaltLength, KeyLength: fast.KeyLength,
	})
	require.NoError(t, err)
	hash, err := hasher.Hash(password)
	require.NoError(t, err)

	cfg := hrdesk.DefaultConfig()
	cfg.Password = fast
	cfg.Session.SweepInterval = 0
	cfg.Session.IdleTimeout = 30 * time.Second

	clk := clock.NewFake(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := hrdesk.New().
		WithConfig(cfg).
		WithUsers(
			identity.User{Email: "admin@local.com", PasswordHash: hash},
			identity.User{Email: "boss@corp.example", PasswordHash: hash, Role: "ADMIN", FName: "Grace", LName: "Hopper"},
		).
		WithClock(clk).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(p.Close)

	opts = append([]Option{WithLogger(logger)}, opts...)
	return &fixture{
		portal:  p,
		clock:   clk,
		handler: New(p, opts...).Handler(),
	}
}

func (f *fixture) do(method, path, clientID, contentType, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if clientID != "" {
		req.AddCookie(&http.Cookie{Name: "hrdesk_client", Value: clientID})
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) signIn(t *testing.T, clientID, email string, remember bool) {
	t.Helper()
	form := url.Values{"email": {email}, "password": {password}}
	if remember {
		form.Set("remember", "on")
	}
	rec := f.do(http.MethodPost, "/signin", clientID, "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "health checks must not mint clients")

	failing := newFixture(t, WithHealthCheck(func(context.Context) error { return errors.New("redis down") }))
	assert.Equal(t, http.StatusServiceUnavailable, failing.do(http.MethodGet, "/healthz", "", "", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.handler = New(f.portal, WithMetricsHandler(prometheus.NewExporter(f.portal).Handler())).Handler()

	f.do(http.MethodGet, "/", "c1", "", "")
	rec := f.do(http.MethodGet, "/metrics", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hrdesk_authorize_sign_in_redirect_total 1")
}

func TestGuardedViewRedirectsAnonymousVisitor(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/leave", "", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/signin?from=%2Fleave", rec.Header().Get("Location"))
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, "hrdesk_client", rec.Result().Cookies()[0].Name)
}

func TestAnonymousTrafficDoesNotRetainClients(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 500; i++ {
		rec := f.do(http.MethodGet, "/", "", "", "")
		require.Equal(t, http.StatusFound, rec.Code)
	}
	assert.Equal(t, 0, f.portal.Clients())

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("stale-cookie-%d", i)
		require.Equal(t, http.StatusFound, f.do(http.MethodGet, "/profile", id, "", "").Code)
		decodeSession(t, f.do(http.MethodGet, "/api/session", id, "", ""))
	}
	assert.Equal(t, 0, f.portal.Clients())
	assert.Zero(t, f.portal.Metrics().Value(hrdesk.MetricClientCreated))
}

func TestFormSignInFlow(t *testing.T) {
	f := newFixture(t)

	page := f.do(http.MethodGet, "/signin?from=%2Fprofile", "c1", "", "")
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `name="from" value="/profile"`)

	form := url.Values{"email": {"admin@local.com"}, "password": {password}, "from": {"/profile"}}
	rec := f.do(http.MethodPost, "/signin", "c1", "application/x-www-form-urlencoded", form.Encode())
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile", rec.Header().Get("Location"))

	rec = f.do(http.MethodGet, "/profile", "c1", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "admin@local.com")
	assert.Contains(t, body, "<dd>admin</dd>", "display name falls back to the email local part")
	assert.Contains(t, body, "<dd>USER</dd>")

	again := f.do(http.MethodGet, "/signin?from=%2Fleave", "c1", "", "")
	assert.Equal(t, http.StatusFound, again.Code)
	assert.Equal(t, "/leave", again.Header().Get("Location"))
}

func TestFormSignInRejected(t *testing.T) {
	f := newFixture(t)

	form := url.Values{"email": {"admin@local.com"}, "password": {"nope-nope-nope"}, "from": {"/leave"}}
	rec := f.do(http.MethodPost, "/signin", "c1", "application/x-www-form-urlencoded", form.Encode())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incorrect email or password.")
	assert.Contains(t, rec.Body.String(), `value="admin@local.com"`)

	assert.Equal(t, http.StatusFound, f.do(http.MethodGet, "/leave", "c1", "", "").Code)
}

func TestJSONSignInSanitizesOrigin(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"/leave?tab=mine", "/leave?tab=mine"},
		{"//evil.example/x", "/"},
		{"https://evil.example/", "/"},
		{"/\\evil.example", "/"},
		{"/signin", "/"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			f := newFixture(t)
			body, _ := json.Marshal(signInRequest{Email: "boss@corp.example", Password: password, From: tt.from})
			rec := f.do(http.MethodPost, "/signin", "c1", "application/json", string(body))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp struct {
				Location string   `json:"location"`
				User     userView `json:"user"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.want, resp.Location)
			assert.Equal(t, "Grace Hopper", resp.User.DisplayName)
			assert.Equal(t, "ADMIN", resp.User.Role)
		})
	}
}

func TestJSONSignInErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/signin", "c1", "application/json", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/signin", "c1", "application/json", `{"email":"boss@corp.example","password":"wrong-wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/signin", "c1", "application/json", `{"id_token":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "token sign-in is disabled by default")
}

func TestRoleRedirect(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "c1", "admin@local.com", false)

	rec := f.do(http.MethodGet, "/admin", "c1", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	f.signIn(t, "c2", "boss@corp.example", false)
	rec = f.do(http.MethodGet, "/admin", "c2", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Administration")
}

func TestSessionAPI(t *testing.T) {
	f := newFixture(t)

	resp := decodeSession(t, f.do(http.MethodGet, "/api/session", "c1", "", ""))
	assert.Equal(t, "logged_out", resp.State)
	assert.Nil(t, resp.User)
	assert.Equal(t, 30, resp.IdleTimeoutSec)

	f.signIn(t, "c1", "admin@local.com", true)
	f.clock.Advance(10 * time.Second)

	resp = decodeSession(t, f.do(http.MethodGet, "/api/session", "c1", "", ""))
	assert.Equal(t, "logged_in", resp.State)
	require.NotNil(t, resp.User)
	assert.Equal(t, "admin@local.com", resp.User.Email)
	assert.True(t, resp.Remembered)
	assert.Equal(t, 20, resp.ExpiresInSecs)
}

func TestActivityBeaconExtendsSession(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "c1", "admin@local.com", false)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/activity", "c1", "application/json", `{"kind":"blink"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/activity", "c1", "application/json", `nope`).Code)

	f.clock.Advance(20 * time.Second)
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/activity", "c1", "application/json", `{"kind":"scroll"}`).Code)
	f.clock.Advance(20 * time.Second)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/", "c1", "", "").Code)

	f.clock.Advance(31 * time.Second)
	rec := f.do(http.MethodGet, "/", "c1", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/signin?from=%2F", rec.Header().Get("Location"))
}

func TestSignOut(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, "c1", "admin@local.com", true)

	rec := f.do(http.MethodPost, "/signout", "c1", "", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signin", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusFound, f.do(http.MethodGet, "/", "c1", "", "").Code)
	assert.Equal(t, uint64(1), f.portal.Metrics().Value(hrdesk.MetricLogout))

	rec = f.do(http.MethodPost, "/signout", "c1", "application/json", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
