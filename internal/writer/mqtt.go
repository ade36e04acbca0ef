// internal/writer/mqtt.go
package writer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tamzrod/counterpoll/internal/config"
	"github.com/tamzrod/counterpoll/internal/poller"
	"github.com/tamzrod/counterpoll/internal/status"
)

// Publisher is the part of mqtt.Client the writer uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTOptions configures an MQTTWriter.
type MQTTOptions struct {
	TopicPrefix    string
	PublishTimeout time.Duration
	QoS            byte
}

// MQTTWriter publishes records to <prefix>/<device>/<channel> and device
// status to <prefix>/<device>/status. Values and status are retained,
// read failures are not.
type MQTTWriter struct {
	pub  Publisher
	opts MQTTOptions
}

func NewMQTTWriter(p Publisher, opts MQTTOptions) *MQTTWriter {
	return &MQTTWriter{pub: p, opts: opts}
}

type recordPayload struct {
	Kind      string   `json:"kind"`
	Device    string   `json:"device"`
	Channel   string   `json:"channel"`
	Value     *uint64  `json:"value,omitempty"`
	Delta     *int64   `json:"delta,omitempty"`
	RatePerS  *float64 `json:"rate_per_s,omitempty"`
	ErrorKind string   `json:"error_kind,omitempty"`
	Error     string   `json:"error,omitempty"`
	Cycle     uint64   `json:"cycle"`
	TS        string   `json:"ts"`
}

type statusPayload struct {
	Device              string `json:"device"`
	Health              string `json:"health"`
	HealthCode          uint16 `json:"health_code"`
	LastErrorCode       uint16 `json:"last_error_code"`
	SecondsInError      uint16 `json:"seconds_in_error"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

func (w *MQTTWriter) Write(r Record) error {
	p := recordPayload{
		Kind:    r.Kind.String(),
		Device:  r.Device,
		Channel: r.Channel,
		Cycle:   r.Cycle,
		TS:      r.At.UTC().Format(time.RFC3339Nano),
	}

	retained := true
	switch r.Kind {
	case poller.EventReadFailure:
		retained = false
		p.ErrorKind = r.ErrKind.String()
		if r.Err != nil {
			p.Error = r.Err.Error()
		}
	case poller.EventChange:
		p.Delta = &r.Delta
		fallthrough
	default:
		p.Value = &r.Value
		if r.HasRate {
			p.RatePerS = &r.Rate
		}
	}

	return w.publish(w.topic(r.Device, r.Channel), retained, p)
}

func (w *MQTTWriter) WriteStatus(device string, s status.Snapshot) error {
	return w.publish(w.topic(device, "status"), true, statusPayload{
		Device:              device,
		Health:              status.HealthName(s.Health),
		HealthCode:          s.Health,
		LastErrorCode:       s.LastErrorCode,
		SecondsInError:      s.SecondsInError,
		ConsecutiveFailures: s.ConsecutiveFailures,
	})
}

func (w *MQTTWriter) publish(topic string, retained bool, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt: encode %s: %w", topic, err)
	}

	t := w.pub.Publish(topic, w.opts.QoS, retained, b)
	if w.opts.PublishTimeout > 0 {
		if !t.WaitTimeout(w.opts.PublishTimeout) {
			return fmt.Errorf("mqtt: publish %s: timeout after %s", topic, w.opts.PublishTimeout)
		}
	} else {
		t.Wait()
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

func (w *MQTTWriter) topic(parts ...string) string {
	segs := make([]string, 0, len(parts)+1)
	if w.opts.TopicPrefix != "" {
		segs = append(segs, strings.Trim(w.opts.TopicPrefix, "/"))
	}
	for _, p := range parts {
		segs = append(segs, topicSegment(p))
	}
	return strings.Join(segs, "/")
}

var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// topicSegment keeps labels from adding levels or wildcards to a topic.
func topicSegment(s string) string {
	return topicReplacer.Replace(s)
}

// ---- client ----

// DialMQTT connects a paho client for c. Paho's own logging goes to log at
// warn/error level.
func DialMQTT(c config.MQTTConfig, log zerolog.Logger) (mqtt.Client, error) {
	l := log.With().Str("component", "mqtt").Logger()
	mqtt.ERROR = pahoLogger{l: l, level: zerolog.ErrorLevel}
	mqtt.CRITICAL = pahoLogger{l: l, level: zerolog.ErrorLevel}
	mqtt.WARN = pahoLogger{l: l, level: zerolog.WarnLevel}

	timeout := c.PublishTimeout()
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultMQTTPublishMs) * time.Millisecond
	}

	opts := mqtt.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(c.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(3 * timeout).
		SetWriteTimeout(timeout).
		SetOrderMatters(false).
		SetOnConnectHandler(func(mqtt.Client) {
			l.Info().Str("broker", c.Broker).Msg("mqtt connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			l.Warn().Err(err).Msg("mqtt connection lost")
		})

	client := mqtt.NewClient(opts)
	t := client.Connect()
	if !t.WaitTimeout(3 * timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt: connect %s: timeout", c.Broker)
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", c.Broker, err)
	}
	return client, nil
}

// pahoLogger adapts zerolog to paho's Println/Printf logger.
type pahoLogger struct {
	l     zerolog.Logger
	level zerolog.Level
}

func (p pahoLogger) Println(v ...interface{}) {
	p.l.WithLevel(p.level).Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (p pahoLogger) Printf(format string, v ...interface{}) {
	p.l.WithLevel(p.level).Msgf(format, v...)
}
