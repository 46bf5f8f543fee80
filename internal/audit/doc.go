// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink] for event consumers (channel, JSON writer, MQTT, fan-out, no-op).
//   - [Dispatcher], a buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event], a structured audit record with severity, subject, jti, IP and metadata.
//
// This package owns event buffering and sink delivery. Which events are emitted is
// decided by the engine.
package audit
