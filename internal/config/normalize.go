// internal/config/normalize.go
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Defaults applied by Normalize.
const (
	DefaultTimeoutMs         = 3000
	DefaultPort              = 502
	DefaultRegisters         = 2
	DefaultConnection        = "persistent"
	DefaultWordOrder         = "low_first"
	DefaultRateWindowS       = 60
	DefaultOverflowThreshold = 4294967000
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "console"
	DefaultMQTTClientID      = "counterpoll"
	DefaultMQTTTopicPrefix   = "counterpoll"
	DefaultMQTTPublishMs     = 2000
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Poll.TimeoutMs == 0 {
		cfg.Poll.TimeoutMs = DefaultTimeoutMs
	}

	for di := range cfg.Devices {
		d := &cfg.Devices[di]

		// ------------------------------------------------------------
		// ENDPOINT / SESSION
		// ------------------------------------------------------------

		if !strings.Contains(d.Endpoint, ":") {
			d.Endpoint = net.JoinHostPort(d.Endpoint, strconv.Itoa(DefaultPort))
		}
		if d.Connection == "" {
			d.Connection = DefaultConnection
		}
		if d.WordOrder == "" {
			d.WordOrder = DefaultWordOrder
		}

		// ------------------------------------------------------------
		// CHANNELS
		// ------------------------------------------------------------

		if len(d.Channels) == 0 && d.ChannelsCount > 0 {
			d.Channels = make([]ChannelConfig, 0, d.ChannelsCount)
			for i := 0; i < d.ChannelsCount; i++ {
				d.Channels = append(d.Channels, ChannelConfig{
					Name:      fmt.Sprintf("ch%d", i),
					Address:   uint16(i * DefaultRegisters),
					Registers: DefaultRegisters,
				})
			}
		}
		d.ChannelsCount = 0

		for ci := range d.Channels {
			if d.Channels[ci].Registers == 0 {
				d.Channels[ci].Registers = DefaultRegisters
			}
		}
	}

	if cfg.Counters.RateWindowS == 0 {
		cfg.Counters.RateWindowS = DefaultRateWindowS
	}
	if cfg.Counters.OverflowThreshold == 0 {
		cfg.Counters.OverflowThreshold = DefaultOverflowThreshold
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultMQTTClientID
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultMQTTTopicPrefix
	}
	if cfg.MQTT.PublishTimeoutMs == 0 {
		cfg.MQTT.PublishTimeoutMs = DefaultMQTTPublishMs
	}
}
