// Package otel publishes otpgate metrics as OpenTelemetry observable
// instruments.
//
// [NewExporter] creates one Int64ObservableCounter per engine counter and one
// Int64ObservableGauge per histogram bucket, then reads
// [otpgate.Engine.MetricsSnapshot] once per collection in a single callback.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
