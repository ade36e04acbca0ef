// internal/config/config.go
package config

import "time"

type Config struct {
	Poll     PollConfig     `yaml:"poll"`
	Devices  []DeviceConfig `yaml:"devices"`
	Counters CountersConfig `yaml:"counters"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	TimeoutMs  int `yaml:"timeout_ms"` // per read; 0 => DefaultTimeoutMs
}

func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

func (p PollConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// ---- DEVICE ----

type DeviceConfig struct {
	Label      string `yaml:"label"`
	Endpoint   string `yaml:"endpoint"` // host[:port]
	UnitID     uint8  `yaml:"unit_id"`
	Connection string `yaml:"connection"` // persistent | per_request
	WordOrder  string `yaml:"word_order"` // low_first | high_first

	Channels []ChannelConfig `yaml:"channels"`

	// Shorthand for the ADAM-6051 layout: ch0..chN-1 at 0, 2, 4, ...
	// Only used when Channels is empty.
	ChannelsCount int `yaml:"channels_count"`
}

// ---- CHANNEL ----

type ChannelConfig struct {
	Name      string `yaml:"name"`
	Address   uint16 `yaml:"address"`
	Registers uint16 `yaml:"registers"` // 2..4; 0 => 2
}

// ---- COUNTERS ----

type CountersConfig struct {
	RateWindowS       int    `yaml:"rate_window_s"`
	OverflowThreshold uint64 `yaml:"overflow_threshold"`
}

func (c CountersConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowS) * time.Second
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker           string `yaml:"broker"` // empty disables
	ClientID         string `yaml:"client_id"`
	TopicPrefix      string `yaml:"topic_prefix"`
	PublishTimeoutMs int    `yaml:"publish_timeout_ms"`
}

func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

func (m MQTTConfig) PublishTimeout() time.Duration {
	return time.Duration(m.PublishTimeoutMs) * time.Millisecond
}
