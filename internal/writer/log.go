// internal/writer/log.go
package writer

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tamzrod/counterpoll/internal/poller"
	"github.com/tamzrod/counterpoll/internal/status"
)

// LogOptions configures a LogWriter.
type LogOptions struct {
	// Values above this log an overflow warning. 0 disables the check.
	OverflowThreshold uint64
}

// LogWriter writes records and health transitions as structured log lines.
type LogWriter struct {
	log      zerolog.Logger
	overflow uint64

	mu   sync.Mutex
	last map[string]status.Snapshot
}

func NewLogWriter(l zerolog.Logger, opts LogOptions) *LogWriter {
	return &LogWriter{
		log:      l,
		overflow: opts.OverflowThreshold,
		last:     make(map[string]status.Snapshot),
	}
}

func (w *LogWriter) Write(r Record) error {
	if r.Kind == poller.EventReadFailure {
		w.log.Warn().
			Str("device", r.Device).
			Str("channel", r.Channel).
			Uint64("cycle", r.Cycle).
			Str("error_kind", r.ErrKind.String()).
			Err(r.Err).
			Msg("read failed")
		return nil
	}

	e := w.log.Info().
		Str("device", r.Device).
		Str("channel", r.Channel).
		Str("event", r.Kind.String()).
		Uint64("value", r.Value)
	if r.Kind == poller.EventChange {
		e = e.Uint64("previous", r.Previous).Int64("delta", r.Delta)
	}
	if r.HasRate {
		e = e.Float64("rate_per_s", r.Rate)
	}
	e.Msg("counter")

	if w.overflow > 0 && r.Value > w.overflow {
		w.log.Warn().
			Str("device", r.Device).
			Str("channel", r.Channel).
			Uint64("value", r.Value).
			Uint64("threshold", w.overflow).
			Msg("counter approaching overflow")
	}
	return nil
}

// WriteStatus logs health and error code transitions.
// seconds_in_error ticks alone are not logged.
func (w *LogWriter) WriteStatus(device string, s status.Snapshot) error {
	w.mu.Lock()
	prev, seen := w.last[device]
	w.last[device] = s
	w.mu.Unlock()

	if seen && prev.Health == s.Health && prev.LastErrorCode == s.LastErrorCode {
		return nil
	}

	e := w.log.Info()
	if s.Health == status.HealthError {
		e = w.log.Warn()
	}
	e.Str("device", device).
		Str("health", status.HealthName(s.Health)).
		Uint16("last_error_code", s.LastErrorCode).
		Uint16("seconds_in_error", s.SecondsInError).
		Msg("device status")
	return nil
}
