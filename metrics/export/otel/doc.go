// Package otel binds portal metrics to OpenTelemetry observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per portal counter and
// one Int64ObservableGauge per latency bucket. A single callback reads
// [hrdesk.Portal.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate portal state.
package otel
