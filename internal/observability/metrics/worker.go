package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	handledTotal   *prometheus.CounterVec
	handleDuration *prometheus.HistogramVec
	handleInFlight prometheus.Gauge
	eventLag       *prometheus.HistogramVec
	sweepsTotal    *prometheus.CounterVec
	remindersTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string, registry *prometheus.Registry) *WorkerMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	handledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "events_handled_total",
			Help:      "Total handled lifecycle events by type and status.",
		},
		[]string{"service", "type", "status"},
	)
	handleDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "event_handle_duration_seconds",
			Help:      "Event handling duration in seconds by type and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "type", "status"},
	)
	handleInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "events_in_flight",
			Help:      "Number of events being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between the committed transition and handling start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	sweepsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "reminder_sweeps_total",
			Help:      "Reminder sweeps by status.",
		},
		[]string{"service", "status"},
	)
	remindersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "reminders_total",
			Help:      "Reminders attempted by the sweep, by outcome.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(handledTotal, handleDuration, handleInFlight, eventLag, sweepsTotal, remindersTotal)

	return &WorkerMetrics{
		registry:       registry,
		handledTotal:   handledTotal,
		handleDuration: handleDuration,
		handleInFlight: handleInFlight,
		eventLag:       eventLag,
		sweepsTotal:    sweepsTotal,
		remindersTotal: remindersTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvent() {
	m.handleInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(service, eventType string, duration time.Duration, err error) {
	m.handleInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.handledTotal.WithLabelValues(service, eventType, status).Inc()
	m.handleDuration.WithLabelValues(service, eventType, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveEventLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordSweep(service string, sent, failed int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.sweepsTotal.WithLabelValues(service, status).Inc()
	if sent > 0 {
		m.remindersTotal.WithLabelValues(service, "sent").Add(float64(sent))
	}
	if failed > 0 {
		m.remindersTotal.WithLabelValues(service, "failed").Add(float64(failed))
	}
}
