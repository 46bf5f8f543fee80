package authcore

import (
	"io"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
)

// AuditEvent is one security-relevant record. Raw tokens and passwords never appear in it.
type AuditEvent = internalaudit.Event

// AuditSink receives events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// AuditSeverity ranks events for alerting.
type AuditSeverity = internalaudit.Severity

const (
	SeverityInfo     = internalaudit.SeverityInfo
	SeverityWarning  = internalaudit.SeverityWarning
	SeverityCritical = internalaudit.SeverityCritical
)

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type MultiSink = internalaudit.MultiSink

type MQTTSink = internalaudit.MQTTSink

type MQTTConfig = internalaudit.MQTTConfig

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// DialMQTTSink connects to an MQTT broker and publishes events to
// <topic>/<severity>/<event_type>.
func DialMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	return internalaudit.DialMQTT(cfg)
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *internalaudit.Dispatcher {
	return internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}
