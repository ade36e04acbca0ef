// internal/rate/window.go
package rate

import (
	"sync"
	"time"
)

type sample struct {
	at    time.Time
	count uint64
}

// Window computes a count rate per key over a sliding time window.
type Window struct {
	size time.Duration

	mu      sync.Mutex
	history map[string][]sample
}

// NewWindow keeps samples younger than size.
func NewWindow(size time.Duration) *Window {
	return &Window{
		size:    size,
		history: make(map[string][]sample),
	}
}

// Add records count at time at and returns the rate per second between the
// oldest and newest samples still in the window. ok is false until the
// window holds two samples that are apart in time.
func (w *Window) Add(key string, count uint64, at time.Time) (perSecond float64, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	h := append(w.history[key], sample{at: at, count: count})

	cutoff := at.Add(-w.size)
	i := 0
	for i < len(h) && !h[i].at.After(cutoff) {
		i++
	}
	h = h[i:]
	w.history[key] = h

	if len(h) < 2 {
		return 0, false
	}

	oldest, latest := h[0], h[len(h)-1]
	secs := latest.at.Sub(oldest.at).Seconds()
	if secs <= 0 {
		return 0, false
	}
	return (float64(latest.count) - float64(oldest.count)) / secs, true
}

// Reset forgets the history of key.
func (w *Window) Reset(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.history, key)
}
