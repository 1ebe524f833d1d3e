// Package metrics exposes sync counters to Prometheus.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors updated by the sync engine and notifier.
type Metrics struct {
	cycles         prometheus.Counter
	cycleDuration  prometheus.Histogram
	fetchErrors    *prometheus.CounterVec
	announced      *prometheus.CounterVec
	notifyFailures prometheus.Counter
	cursorResets   *prometheus.CounterVec
	cursor         *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slappd_cycles_total",
			Help: "Total number of completed sync cycles",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slappd_cycle_duration_seconds",
			Help:    "Duration of sync cycles",
			Buckets: prometheus.DefBuckets,
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slappd_fetch_errors_total",
			Help: "Fetch failures by kind",
		}, []string{"kind"}),
		announced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slappd_announcements_total",
			Help: "Notifications attempted by type",
		}, []string{"type"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slappd_notify_failures_total",
			Help: "Notifications that could not be delivered",
		}),
		cursorResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slappd_cursor_resets_total",
			Help: "Cursors cleared after persistent fetch failures",
		}, []string{"user"}),
		cursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "slappd_cursor_checkin_id",
			Help: "Last announced check-in id per user",
		}, []string{"user"}),
	}
	reg.MustRegister(m.cycles, m.cycleDuration, m.fetchErrors, m.announced,
		m.notifyFailures, m.cursorResets, m.cursor)
	return m
}

// CycleDone records one finished cycle.
func (m *Metrics) CycleDone(seconds float64) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(seconds)
}

// FetchError counts a failed fetch of the given kind.
func (m *Metrics) FetchError(kind string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(kind).Inc()
}

// Announced counts a notification attempt ("checkin" or "badge").
func (m *Metrics) Announced(typ string) {
	if m == nil {
		return
	}
	m.announced.WithLabelValues(typ).Inc()
}

// NotifyFailed counts an undelivered notification.
func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

// CursorReset counts a safety reset for user.
func (m *Metrics) CursorReset(user string) {
	if m == nil {
		return
	}
	m.cursorResets.WithLabelValues(user).Inc()
	m.cursor.DeleteLabelValues(user)
}

// CursorSet publishes the current cursor for user.
func (m *Metrics) CursorSet(user string, id int64) {
	if m == nil {
		return
	}
	m.cursor.WithLabelValues(user).Set(float64(id))
}
