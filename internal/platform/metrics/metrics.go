package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	DocumentsGenerated  prometheus.Counter
	GenerationFailures  prometheus.Counter
	SignaturesRecorded  prometheus.Counter
	SignaturesBlocked   prometheus.Counter
	DocumentsCompleted  prometheus.Counter
	DocumentsCancelled  prometheus.Counter
	AuditEventsWritten  *prometheus.CounterVec
	WorkflowTransitions prometheus.Counter
	TaskEscalations     prometheus.Counter
	SignDuration        prometheus.Histogram
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on the given registerer. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "vellum_documents_generated_total",
			Help: "Total number of documents generated from templates",
		}),
		GenerationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "vellum_generation_failures_total",
			Help: "Total number of failed document generation attempts",
		}),
		SignaturesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "vellum_signatures_recorded_total",
			Help: "Total number of signatures burned into documents",
		}),
		SignaturesBlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "vellum_signatures_blocked_total",
			Help: "Total number of sign attempts rejected by sequential ordering",
		}),
		DocumentsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vellum_documents_completed_total",
			Help: "Total number of documents with all required signatures",
		}),
		DocumentsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "vellum_documents_cancelled_total",
			Help: "Total number of cancelled documents",
		}),
		AuditEventsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vellum_audit_events_total",
			Help: "Total number of audit events written, by event type",
		}, []string{"event_type"}),
		WorkflowTransitions: factory.NewCounter(prometheus.CounterOpts{
			Name: "vellum_workflow_transitions_total",
			Help: "Total number of workflow instance state transitions",
		}),
		TaskEscalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "vellum_task_escalations_total",
			Help: "Total number of workflow task escalations",
		}),
		SignDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vellum_sign_duration_seconds",
			Help:    "Wall time of a sign call including PDF compositing",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
