// Package prometheus renders portal metrics in the Prometheus text
// exposition format.
//
// [NewExporter] reads [hrdesk.Portal.MetricsSnapshot] on every scrape.
// Counters are named hrdesk_*_total; the single histogram is
// hrdesk_authorize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate portal state.
package prometheus
