// internal/status/tracker.go
package status

import (
	"sort"

	"github.com/tamzrod/counterpoll/internal/poller"
	"github.com/tamzrod/counterpoll/internal/poller/modbus"
)

// Tracker keeps one Snapshot per device, driven by poller events and a 1 Hz tick.
// Not safe for concurrent use; the orchestrator goroutine owns it.
type Tracker struct {
	devices map[string]*Snapshot
}

// NewTracker starts every label in HealthUnknown.
func NewTracker(labels ...string) *Tracker {
	t := &Tracker{devices: make(map[string]*Snapshot, len(labels))}
	for _, l := range labels {
		t.devices[l] = &Snapshot{Health: HealthUnknown}
	}
	return t
}

// Observe folds one event into the device snapshot.
// Snapshot, change and recovered events are successes; read failures move
// the device to HealthError. seconds_in_error only moves on Tick.
// It returns the new snapshot and whether health, error code or seconds changed.
func (t *Tracker) Observe(ev poller.Event) (Snapshot, bool) {
	s := t.device(ev.Device)
	before := *s

	if ev.Kind == poller.EventReadFailure {
		s.Health = HealthError
		s.LastErrorCode = modbus.CodeOf(ev.Err)
		s.ConsecutiveFailures++
	} else {
		// Recovery / OK
		s.Health = HealthOK
		s.LastErrorCode = 0
		s.SecondsInError = 0
		s.ConsecutiveFailures = 0
	}

	return *s, !s.sameState(before)
}

// Tick advances seconds_in_error for every device that is not OK.
// It returns the labels whose snapshot changed, sorted.
func (t *Tracker) Tick() []string {
	var changed []string
	for label, s := range t.devices {
		if s.Health == HealthOK {
			continue
		}
		if s.SecondsInError < SecondsInErrorMax {
			s.SecondsInError++
			changed = append(changed, label)
		}
	}
	sort.Strings(changed)
	return changed
}

// Snapshot returns the current snapshot of label.
func (t *Tracker) Snapshot(label string) (Snapshot, bool) {
	s, ok := t.devices[label]
	if !ok {
		return Snapshot{}, false
	}
	return *s, true
}

// Labels returns every tracked device, sorted.
func (t *Tracker) Labels() []string {
	out := make([]string, 0, len(t.devices))
	for l := range t.devices {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) device(label string) *Snapshot {
	s, ok := t.devices[label]
	if !ok {
		s = &Snapshot{Health: HealthUnknown}
		t.devices[label] = s
	}
	return s
}
