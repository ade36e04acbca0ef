// internal/poller/metrics.go
package poller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports poller activity. A nil *Metrics records nothing.
type Metrics struct {
	reads         *prometheus.CounterVec
	values        *prometheus.GaugeVec
	changes       *prometheus.CounterVec
	cycleDuration prometheus.Histogram
}

// NewMetrics creates and registers the poller collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "counterpoll",
			Name:      "reads_total",
			Help:      "Register reads by device and result (ok or error kind).",
		}, []string{"device", "result"}),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "counterpoll",
			Name:      "counter_value",
			Help:      "Last assembled counter value.",
		}, []string{"device", "channel"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "counterpoll",
			Name:      "counter_changes_total",
			Help:      "Change events emitted per channel.",
		}, []string{"device", "channel"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "counterpoll",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one poll cycle across all devices.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	reg.MustRegister(m.reads, m.values, m.changes, m.cycleDuration)
	return m
}

func (m *Metrics) observeRead(device, result string) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(device, result).Inc()
}

func (m *Metrics) observeValue(device, channel string, v uint64) {
	if m == nil {
		return
	}
	m.values.WithLabelValues(device, channel).Set(float64(v))
}

func (m *Metrics) observeChange(device, channel string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(device, channel).Inc()
}

func (m *Metrics) observeCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}
