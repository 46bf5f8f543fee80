// Package prometheus exposes authcore metrics in the Prometheus text format.
//
// [New] takes an engine (or any internaldefs.Source) and [Exporter.Handler] serves every
// counter as authcore_*_total plus the authcore_validate_latency_seconds histogram.
// Nothing is registered globally; callers mount the handler.
package prometheus
