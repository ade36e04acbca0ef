// internal/config/validate_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// helper to build a one-device config quickly
func single(d DeviceConfig) *Config {
	return &Config{
		Poll:    PollConfig{IntervalMs: 1000},
		Devices: []DeviceConfig{d},
	}
}

func device(label string, channels ...ChannelConfig) DeviceConfig {
	return DeviceConfig{
		Label:    label,
		Endpoint: "127.0.0.1:5502",
		UnitID:   1,
		Channels: channels,
	}
}

func channel(name string, addr, regs uint16) ChannelConfig {
	return ChannelConfig{Name: name, Address: addr, Registers: regs}
}

func expectErr(t *testing.T, cfg *Config, contains string) {
	t.Helper()
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", contains)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Fatalf("expected error containing %q, got %v", contains, err)
	}
}

// ---- tests ----

func TestValidate_Minimal(t *testing.T) {
	cfg := single(device("d1", channel("c0", 0, 2)))

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Interval(t *testing.T) {
	cfg := single(device("d1", channel("c0", 0, 2)))
	cfg.Poll.IntervalMs = 0

	expectErr(t, cfg, "interval_ms")
}

func TestValidate_NoDevices(t *testing.T) {
	expectErr(t, &Config{Poll: PollConfig{IntervalMs: 1000}}, "at least one device")
}

func TestValidate_DuplicateLabel(t *testing.T) {
	cfg := single(device("d1", channel("c0", 0, 2)))
	cfg.Devices = append(cfg.Devices, device("d1", channel("c0", 0, 2)))

	expectErr(t, cfg, "duplicate label")
}

func TestValidate_SameEndpointDifferentUnitsAllowed(t *testing.T) {
	cfg := single(device("d1", channel("c0", 0, 2)))
	d2 := device("d2", channel("c0", 0, 2))
	d2.UnitID = 2
	cfg.Devices = append(cfg.Devices, d2)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Endpoint(t *testing.T) {
	cases := map[string]string{
		"":           "endpoint is required",
		":502":       "host is empty",
		"host:http":  "invalid port",
		"host:70000": "invalid port",
		"host:1:2":   "endpoint",
	}
	for ep, want := range cases {
		d := device("d1", channel("c0", 0, 2))
		d.Endpoint = ep
		expectErr(t, single(d), want)
	}

	d := device("d1", channel("c0", 0, 2))
	d.Endpoint = "plc.local"
	if err := Validate(single(d)); err != nil {
		t.Fatalf("host without port: unexpected error: %v", err)
	}
}

func TestValidate_ConnectionAndWordOrder(t *testing.T) {
	d := device("d1", channel("c0", 0, 2))
	d.Connection = "sometimes"
	expectErr(t, single(d), "connection policy")

	d = device("d1", channel("c0", 0, 2))
	d.WordOrder = "middle_first"
	expectErr(t, single(d), "word order")

	d = device("d1", channel("c0", 0, 2))
	d.Connection = "per_request"
	d.WordOrder = "high_first"
	if err := Validate(single(d)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Channels(t *testing.T) {
	expectErr(t, single(device("d1")), "no channels")
	expectErr(t, single(device("d1", channel("", 0, 2))), "name is required")
	expectErr(t, single(device("d1", channel("c0", 0, 2), channel("c0", 2, 2))), "duplicate channel")
	expectErr(t, single(device("d1", channel("c0", 0, 1))), "registers must be 2..4")
	expectErr(t, single(device("d1", channel("c0", 0, 5))), "registers must be 2..4")
}

func TestValidate_ChannelSpanPastLastRegister(t *testing.T) {
	expectErr(t, single(device("d1", channel("c0", 65535, 2))), "past register 65535")

	// last two registers exactly
	if err := Validate(single(device("d1", channel("c0", 65534, 2)))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ChannelsCount(t *testing.T) {
	d := device("d1")
	d.ChannelsCount = 4
	if err := Validate(single(d)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Channels = []ChannelConfig{channel("c0", 0, 2)}
	expectErr(t, single(d), "mutually exclusive")

	d = device("d1")
	d.ChannelsCount = -1
	expectErr(t, single(d), "channels_count")
}

func TestValidate_LogAndMQTT(t *testing.T) {
	cfg := single(device("d1", channel("c0", 0, 2)))
	cfg.Log.Level = "loud"
	expectErr(t, cfg, "log.level")

	cfg = single(device("d1", channel("c0", 0, 2)))
	cfg.Log.Format = "xml"
	expectErr(t, cfg, "log.format")

	cfg = single(device("d1", channel("c0", 0, 2)))
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.TopicPrefix = "plant/#"
	expectErr(t, cfg, "wildcards")

	// mqtt settings are ignored while disabled
	cfg.MQTT.Broker = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	d := device("d1")
	d.Endpoint = "plc.local"
	d.ChannelsCount = 2
	cfg := single(d)

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Devices[0].Endpoint != "plc.local" || len(cfg.Devices[0].Channels) != 0 || cfg.Poll.TimeoutMs != 0 {
		t.Fatalf("Validate mutated config: %+v", cfg)
	}
}

// ---- normalize ----

func TestNormalize_Defaults(t *testing.T) {
	cfg := single(device("d1", channel("c0", 10, 0)))
	cfg.Devices[0].Endpoint = "plc.local"

	Normalize(cfg)

	d := cfg.Devices[0]
	if d.Endpoint != "plc.local:502" {
		t.Fatalf("endpoint = %q", d.Endpoint)
	}
	if d.Connection != "persistent" || d.WordOrder != "low_first" {
		t.Fatalf("connection=%q word_order=%q", d.Connection, d.WordOrder)
	}
	if d.Channels[0].Registers != 2 {
		t.Fatalf("registers = %d", d.Channels[0].Registers)
	}
	if cfg.Poll.TimeoutMs != 3000 {
		t.Fatalf("timeout_ms = %d", cfg.Poll.TimeoutMs)
	}
	if cfg.Counters.RateWindowS != 60 || cfg.Counters.OverflowThreshold != 4294967000 {
		t.Fatalf("counters = %+v", cfg.Counters)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.MQTT.Enabled() {
		t.Fatalf("mqtt enabled without broker")
	}
}

func TestNormalize_KeepsExplicitValues(t *testing.T) {
	cfg := single(device("d1", channel("c0", 0, 4)))
	cfg.Poll.TimeoutMs = 500
	cfg.Devices[0].Connection = "per_request"
	cfg.Devices[0].WordOrder = "high_first"

	Normalize(cfg)

	d := cfg.Devices[0]
	if d.Endpoint != "127.0.0.1:5502" || d.Connection != "per_request" || d.WordOrder != "high_first" {
		t.Fatalf("device = %+v", d)
	}
	if d.Channels[0].Registers != 4 || cfg.Poll.TimeoutMs != 500 {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}

func TestNormalize_ChannelsCountExpansion(t *testing.T) {
	d := device("adam")
	d.ChannelsCount = 2
	cfg := single(d)

	Normalize(cfg)

	got := cfg.Devices[0].Channels
	want := []ChannelConfig{
		{Name: "ch0", Address: 0, Registers: 2},
		{Name: "ch1", Address: 2, Registers: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("channels = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("channel %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if cfg.Devices[0].ChannelsCount != 0 {
		t.Fatalf("channels_count not cleared")
	}
}

// ---- load ----

const sampleYAML = `
poll:
  interval_ms: 5000
devices:
  - label: SIM-6051-01
    endpoint: localhost:5502
    unit_id: 1
    channels:
      - name: MainProductCounter
        address: 0
mqtt:
  broker: tcp://localhost:1883
`

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Poll.IntervalMs != 5000 {
		t.Fatalf("interval_ms = %d", cfg.Poll.IntervalMs)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].Label != "SIM-6051-01" || cfg.Devices[0].UnitID != 1 {
		t.Fatalf("devices = %+v", cfg.Devices)
	}
	if cfg.Devices[0].Channels[0].Name != "MainProductCounter" {
		t.Fatalf("channels = %+v", cfg.Devices[0].Channels)
	}
	if !cfg.MQTT.Enabled() {
		t.Fatalf("mqtt should be enabled")
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("poll:\n  interval_ms: 1\n  jitter_ms: 5\n"))
	if err == nil || !strings.Contains(err.Error(), "jitter_ms") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestDecode_Empty(t *testing.T) {
	if _, err := Decode(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty document")
	}
}
