// internal/config/validate.go
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tamzrod/counterpoll/internal/poller/modbus"
)

// maxChannelsCount keeps the generated layout inside the register space.
const maxChannelsCount = 32768

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	if cfg.Poll.IntervalMs <= 0 {
		return fmt.Errorf("poll.interval_ms must be > 0 (got %d)", cfg.Poll.IntervalMs)
	}
	if cfg.Poll.TimeoutMs < 0 {
		return fmt.Errorf("poll.timeout_ms must be >= 0 (got %d)", cfg.Poll.TimeoutMs)
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}

	labels := make(map[string]bool, len(cfg.Devices))

	for i, d := range cfg.Devices {
		if d.Label == "" {
			return fmt.Errorf("devices[%d]: label is required", i)
		}
		if labels[d.Label] {
			return fmt.Errorf("device %q: duplicate label", d.Label)
		}
		labels[d.Label] = true

		if err := validateEndpoint(d.Endpoint); err != nil {
			return fmt.Errorf("device %q: %w", d.Label, err)
		}

		if _, err := modbus.ParseConnPolicy(d.Connection); err != nil {
			return fmt.Errorf("device %q: %w", d.Label, err)
		}
		if d.WordOrder != "" {
			if _, err := modbus.ParseWordOrder(d.WordOrder); err != nil {
				return fmt.Errorf("device %q: %w", d.Label, err)
			}
		}

		if err := validateChannels(d); err != nil {
			return err
		}
	}

	// ------------------------------------------------------------
	// COUNTERS / LOG / MQTT
	// ------------------------------------------------------------

	if cfg.Counters.RateWindowS < 0 {
		return fmt.Errorf("counters.rate_window_s must be >= 0 (got %d)", cfg.Counters.RateWindowS)
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	switch cfg.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json (got %q)", cfg.Log.Format)
	}

	if cfg.MQTT.Enabled() {
		if cfg.MQTT.PublishTimeoutMs < 0 {
			return fmt.Errorf("mqtt.publish_timeout_ms must be >= 0 (got %d)", cfg.MQTT.PublishTimeoutMs)
		}
		if strings.ContainsAny(cfg.MQTT.TopicPrefix, "+#") {
			return fmt.Errorf("mqtt.topic_prefix must not contain wildcards (got %q)", cfg.MQTT.TopicPrefix)
		}
	}

	return nil
}

// validateEndpoint accepts host or host:port.
func validateEndpoint(ep string) error {
	if ep == "" {
		return fmt.Errorf("endpoint is required")
	}
	if !strings.Contains(ep, ":") {
		return nil
	}

	host, port, err := net.SplitHostPort(ep)
	if err != nil {
		return fmt.Errorf("endpoint %q: %w", ep, err)
	}
	if host == "" {
		return fmt.Errorf("endpoint %q: host is empty", ep)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("endpoint %q: invalid port %q", ep, port)
	}
	return nil
}

func validateChannels(d DeviceConfig) error {
	switch {
	case len(d.Channels) > 0 && d.ChannelsCount != 0:
		return fmt.Errorf(
			"device %q: channels and channels_count are mutually exclusive",
			d.Label,
		)
	case len(d.Channels) == 0 && d.ChannelsCount == 0:
		return fmt.Errorf("device %q: no channels defined", d.Label)
	case d.ChannelsCount < 0 || d.ChannelsCount > maxChannelsCount:
		return fmt.Errorf(
			"device %q: channels_count must be 1..%d (got %d)",
			d.Label,
			maxChannelsCount,
			d.ChannelsCount,
		)
	}

	names := make(map[string]bool, len(d.Channels))

	for i, c := range d.Channels {
		if c.Name == "" {
			return fmt.Errorf("device %q: channels[%d]: name is required", d.Label, i)
		}
		if names[c.Name] {
			return fmt.Errorf("device %q: duplicate channel %q", d.Label, c.Name)
		}
		names[c.Name] = true

		regs := c.Registers
		if regs == 0 {
			regs = 2
		}
		if regs < 2 || regs > 4 {
			return fmt.Errorf(
				"device %q channel %q: registers must be 2..4 (got %d)",
				d.Label,
				c.Name,
				c.Registers,
			)
		}

		// inclusive end must stay within 0..65535
		if int(c.Address)+int(regs)-1 > 0xFFFF {
			return fmt.Errorf(
				"device %q channel %q: range %d+%d runs past register 65535",
				d.Label,
				c.Name,
				c.Address,
				regs,
			)
		}
	}

	return nil
}
