package internaldefs

import (
	"github.com/MrEthical07/hrdesk"
)

// CounterDef names one portal counter.
type CounterDef struct {
	ID   hrdesk.MetricID
	Name string
	Help string
}

// HistogramDef names one portal histogram.
type HistogramDef struct {
	ID   hrdesk.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: hrdesk.MetricSignInSuccess, Name: "hrdesk_sign_in_success_total", Help: "Successful password sign-ins."},
	{ID: hrdesk.MetricSignInFailure, Name: "hrdesk_sign_in_failure_total", Help: "Rejected password sign-ins."},
	{ID: hrdesk.MetricSignInRateLimited, Name: "hrdesk_sign_in_rate_limited_total", Help: "Sign-ins refused by the throttle."},
	{ID: hrdesk.MetricTokenSignInSuccess, Name: "hrdesk_token_sign_in_success_total", Help: "Successful ID token sign-ins."},
	{ID: hrdesk.MetricTokenSignInFailure, Name: "hrdesk_token_sign_in_failure_total", Help: "Rejected ID tokens."},
	{ID: hrdesk.MetricSessionRestored, Name: "hrdesk_session_restored_total", Help: "Sessions restored from a remembered record."},
	{ID: hrdesk.MetricSessionLogin, Name: "hrdesk_session_login_total", Help: "Sessions adopted by a sign-in."},
	{ID: hrdesk.MetricSessionRemembered, Name: "hrdesk_session_remembered_total", Help: "Sign-ins that persisted a remembered record."},
	{ID: hrdesk.MetricLogout, Name: "hrdesk_logout_total", Help: "Explicit sign-outs."},
	{ID: hrdesk.MetricIdleTimeout, Name: "hrdesk_idle_timeout_total", Help: "Sessions ended by inactivity."},
	{ID: hrdesk.MetricRecordDiscarded, Name: "hrdesk_record_discarded_total", Help: "Unreadable remembered records deleted on load."},
	{ID: hrdesk.MetricStorageError, Name: "hrdesk_storage_error_total", Help: "Absorbed session storage failures."},
	{ID: hrdesk.MetricAuthorizeRender, Name: "hrdesk_authorize_render_total", Help: "Navigations allowed to render."},
	{ID: hrdesk.MetricAuthorizeSignInRedirect, Name: "hrdesk_authorize_sign_in_redirect_total", Help: "Navigations redirected to sign-in."},
	{ID: hrdesk.MetricAuthorizeRoleRedirect, Name: "hrdesk_authorize_role_redirect_total", Help: "Navigations redirected for a disallowed role."},
	{ID: hrdesk.MetricAuthorizePending, Name: "hrdesk_authorize_pending_total", Help: "Navigations answered while the session was loading."},
	{ID: hrdesk.MetricClientCreated, Name: "hrdesk_client_created_total", Help: "Client session stores created."},
	{ID: hrdesk.MetricClientSwept, Name: "hrdesk_client_swept_total", Help: "Idle client session stores dropped."},
}

var HistogramDefs = []HistogramDef{
	{ID: hrdesk.MetricAuthorizeLatency, Name: "hrdesk_authorize_latency_seconds", Help: "Route authorization latency."},
}

// HistogramBounds are the upper bounds in seconds, in bucket order.
var HistogramBounds = []string{
	"0.0001",
	"0.00025",
	"0.0005",
	"0.001",
	"0.0025",
	"0.005",
	"0.01",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds for instrument names.
var HistogramBoundSuffix = []string{
	"0_0001",
	"0_00025",
	"0_0005",
	"0_001",
	"0_0025",
	"0_005",
	"0_01",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
