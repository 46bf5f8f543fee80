package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultMQTTConnectTimeout = 10 * time.Second
	defaultMQTTPublishTimeout = 5 * time.Second
	defaultMQTTQuiesce        = 250 // milliseconds
	defaultMQTTTopic          = "authcore/audit"
)

// MQTTConfig configures the broker connection used by [MQTTSink].
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// Topic is the base topic. Events go to <Topic>/<severity>/<event_type>.
	Topic string
	QoS   byte
}

// Publisher is the subset of a paho client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// MQTTSink publishes each event as JSON. Publish errors are handed to OnError and the
// event is dropped; the dispatcher goroutine is never blocked longer than the publish
// timeout.
type MQTTSink struct {
	pub     Publisher
	client  pahomqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
	OnError func(error)
}

// NewMQTTSink wraps an existing publisher.
func NewMQTTSink(pub Publisher, topic string, qos byte) *MQTTSink {
	if topic == "" {
		topic = defaultMQTTTopic
	}
	if qos > 2 {
		qos = 2
	}
	return &MQTTSink{
		pub:     pub,
		topic:   strings.TrimSuffix(topic, "/"),
		qos:     qos,
		timeout: defaultMQTTPublishTimeout,
	}
}

// DialMQTT connects to the broker and returns a sink that owns the connection.
func DialMQTT(cfg MQTTConfig) (*MQTTSink, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt broker url is required")
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultMQTTConnectTimeout)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultMQTTConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.BrokerURL, err)
	}

	sink := NewMQTTSink(client, cfg.Topic, cfg.QoS)
	sink.client = client
	return sink, nil
}

// Topic returns the topic an event is published to.
func (s *MQTTSink) Topic(event Event) string {
	severity := event.Severity
	if severity == "" {
		severity = SeverityInfo
	}
	return s.topic + "/" + string(severity) + "/" + event.EventType
}

func (s *MQTTSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.pub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.fail(err)
		return
	}

	token := s.pub.Publish(s.Topic(event), s.qos, false, payload)
	if !token.WaitTimeout(s.timeout) {
		s.fail(fmt.Errorf("mqtt publish %s: timeout", event.EventType))
		return
	}
	if err := token.Error(); err != nil {
		s.fail(fmt.Errorf("mqtt publish %s: %w", event.EventType, err))
	}
}

func (s *MQTTSink) fail(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}

// Close disconnects a connection opened by DialMQTT. Sinks built with NewMQTTSink leave
// the publisher alone.
func (s *MQTTSink) Close() {
	if s == nil || s.client == nil {
		return
	}
	s.client.Disconnect(defaultMQTTQuiesce)
}
