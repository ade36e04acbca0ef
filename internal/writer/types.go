// internal/writer/types.go
package writer

import (
	"github.com/tamzrod/counterpoll/internal/poller"
	"github.com/tamzrod/counterpoll/internal/rate"
	"github.com/tamzrod/counterpoll/internal/status"
)

// Record is one poller event as delivered to writers.
type Record struct {
	poller.Event

	Rate    float64 // counts per second over the rate window
	HasRate bool
}

// NewRecord wraps ev and, for every event carrying a value, feeds the rate window.
// A counter going backwards (reset or rollover) restarts its rate history.
// w may be nil.
func NewRecord(ev poller.Event, w *rate.Window) Record {
	r := Record{Event: ev}
	if w == nil || ev.Kind == poller.EventReadFailure {
		return r
	}

	key := ev.Device + "/" + ev.Channel
	if ev.Kind == poller.EventChange && ev.Delta < 0 {
		w.Reset(key)
	}
	r.Rate, r.HasRate = w.Add(key, ev.Value, ev.At)
	return r
}

// Writer delivers records. Delivery only: no state about the poll itself.
type Writer interface {
	Write(r Record) error
}

// StatusWriter is the delivery-only contract for device status.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(device string, s status.Snapshot) error
}
