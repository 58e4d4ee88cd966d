package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/termination-portal/internal/core/domain"
)

// LifecycleMetrics counts case lifecycle activity. It also observes the
// resilience executor's retries and breaker state changes.
type LifecycleMetrics struct {
	service string

	transitions        *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	signatures         *prometheus.CounterVec
	renders            *prometheus.CounterVec
	uploads            *prometheus.CounterVec
	publishFailures    *prometheus.CounterVec
	retries            *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
}

func NewLifecycleMetrics(service string, registry prometheus.Registerer) *LifecycleMetrics {
	m := &LifecycleMetrics{
		service: service,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "case",
			Name:      "transitions_total",
			Help:      "Committed case status transitions.",
		}, []string{"service", "event", "from", "to"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "case",
			Name:      "transitions_rejected_total",
			Help:      "Rejected transitions by reason (conflict, illegal_state, precondition_failed, already_finalized).",
		}, []string{"service", "event", "reason"}),
		signatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signature",
			Name:      "bound_total",
			Help:      "Signatures bound by source.",
		}, []string{"service", "source"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "renders_total",
			Help:      "Document renders by signed flag and outcome.",
		}, []string{"service", "signed", "status"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "uploads_total",
			Help:      "Recorded document uploads by document type.",
		}, []string{"service", "document_type"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Lifecycle events that could not be published after commit.",
		}, []string{"service", "type"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried calls to external collaborators.",
		}, []string{"service", "operation"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes.",
		}, []string{"service", "operation", "to"}),
	}
	if registry != nil {
		registry.MustRegister(
			m.transitions,
			m.rejections,
			m.signatures,
			m.renders,
			m.uploads,
			m.publishFailures,
			m.retries,
			m.breakerTransitions,
		)
	}
	return m
}

func (m *LifecycleMetrics) RecordTransition(event domain.Event, from, to domain.CaseStatus) {
	m.transitions.WithLabelValues(m.service, string(event), string(from), string(to)).Inc()
}

func (m *LifecycleMetrics) RecordTransitionRejected(event domain.Event, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.rejections.WithLabelValues(m.service, string(event), reason).Inc()
}

func (m *LifecycleMetrics) RecordSignatureBound(source domain.SignatureSource) {
	m.signatures.WithLabelValues(m.service, string(source)).Inc()
}

func (m *LifecycleMetrics) RecordRender(signed bool, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.renders.WithLabelValues(m.service, strconv.FormatBool(signed), status).Inc()
}

func (m *LifecycleMetrics) RecordUpload(docType domain.DocumentType) {
	m.uploads.WithLabelValues(m.service, string(docType)).Inc()
}

func (m *LifecycleMetrics) RecordPublishFailure(eventType domain.CaseEventType) {
	m.publishFailures.WithLabelValues(m.service, string(eventType)).Inc()
}

func (m *LifecycleMetrics) Retry(operation string, _ int) {
	m.retries.WithLabelValues(m.service, operation).Inc()
}

func (m *LifecycleMetrics) BreakerStateChanged(operation, _, to string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, to).Inc()
}
