// Package prometheus exposes otpgate metrics through
// github.com/prometheus/client_golang.
//
// [Collector] implements prometheus.Collector and reads
// [otpgate.Engine.MetricsSnapshot] on every scrape. Counter names are
// otpgate_*_total; the single histogram is otpgate_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry; callers choose the registry.
//   - Mutate engine state.
package prometheus
