// Package otel binds authcore metrics to an OpenTelemetry meter.
//
// [New] creates one Int64ObservableCounter per engine counter and one
// Int64ObservableGauge per latency bucket. The caller owns the MeterProvider.
package otel
