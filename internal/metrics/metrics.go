// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "homewx"

// Metrics holds the counters and gauges updated by the components. A nil
// *Metrics is valid and records nothing, which keeps tests free of registries.
type Metrics struct {
	Polls              *prometheus.CounterVec // labels: device, outcome={ok,error}
	PollDuration       *prometheus.HistogramVec
	RainEvents         *prometheus.CounterVec // labels: sensor, type
	CounterResyncs     *prometheus.CounterVec // labels: sensor
	DailyRain          *prometheus.GaugeVec   // labels: sensor
	StateWrites        prometheus.Counter
	HandlerPanics      prometheus.Counter
	SerialLines        *prometheus.CounterVec // labels: device, outcome={ok,invalid}
	Notifications      *prometheus.CounterVec // labels: outcome={sent,dropped,error}
	AutomationRuns     *prometheus.CounterVec // labels: automation
	HistoryWriteErrors prometheus.Counter
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Mobile Alerts API polls by device and outcome.",
		}, []string{"device", "outcome"}),
		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a Mobile Alerts API request.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"device"}),
		RainEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rain_events_total",
			Help:      "Rain started and stopped transitions.",
		}, []string{"sensor", "type"}),
		CounterResyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rain_counter_resyncs_total",
			Help:      "Tip counter decreases that forced a resynchronisation.",
		}, []string{"sensor"}),
		DailyRain: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rain_daily_total_mm",
			Help:      "Rainfall since local midnight.",
		}, []string{"sensor"}),
		StateWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_writes_total",
			Help:      "Writes to the state store.",
		}),
		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_handler_panics_total",
			Help:      "State change handlers that panicked.",
		}),
		SerialLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "serial_lines_total",
			Help:      "Lines read from serial receivers by outcome.",
		}, []string{"device", "outcome"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Push notifications by outcome.",
		}, []string{"outcome"}),
		AutomationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_runs_total",
			Help:      "Automation executions by name.",
		}, []string{"automation"}),
		HistoryWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_errors_total",
			Help:      "Failed writes to the long-term history database.",
		}),
	}

	reg.MustRegister(
		m.Polls,
		m.PollDuration,
		m.RainEvents,
		m.CounterResyncs,
		m.DailyRain,
		m.StateWrites,
		m.HandlerPanics,
		m.SerialLines,
		m.Notifications,
		m.AutomationRuns,
		m.HistoryWriteErrors,
	)

	return m
}

func (m *Metrics) PollDone(device, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(device, outcome).Inc()
	m.PollDuration.WithLabelValues(device).Observe(seconds)
}

func (m *Metrics) RainEvent(sensor, eventType string) {
	if m == nil {
		return
	}
	m.RainEvents.WithLabelValues(sensor, eventType).Inc()
}

func (m *Metrics) CounterResync(sensor string) {
	if m == nil {
		return
	}
	m.CounterResyncs.WithLabelValues(sensor).Inc()
}

func (m *Metrics) SetDailyRain(sensor string, mm float64) {
	if m == nil {
		return
	}
	m.DailyRain.WithLabelValues(sensor).Set(mm)
}

func (m *Metrics) StateWritten() {
	if m == nil {
		return
	}
	m.StateWrites.Inc()
}

func (m *Metrics) HandlerPanicked() {
	if m == nil {
		return
	}
	m.HandlerPanics.Inc()
}

func (m *Metrics) SerialLine(device, outcome string) {
	if m == nil {
		return
	}
	m.SerialLines.WithLabelValues(device, outcome).Inc()
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AutomationRan(name string) {
	if m == nil {
		return
	}
	m.AutomationRuns.WithLabelValues(name).Inc()
}

func (m *Metrics) HistoryWriteFailed() {
	if m == nil {
		return
	}
	m.HistoryWriteErrors.Inc()
}
