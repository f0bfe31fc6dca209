package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cloister"

// Outcome labels for workflowOutcomes.
const (
	OutcomeStarted        = "started"
	OutcomeStaged         = "staged"
	OutcomeCommitted      = "committed"
	OutcomeCancelled      = "cancelled"
	OutcomeClosed         = "closed"
	OutcomeResolved       = "resolved"
	OutcomeUnauthorized   = "unauthorized"
	OutcomeDesynchronized = "desynchronized"
	OutcomeConflict       = "conflict"
	OutcomeAlreadyRetired = "already_retired"
	OutcomeNotFound       = "not_found"
	OutcomeExhausted      = "exhausted"
	OutcomeDegraded       = "degraded"
	OutcomeInternal       = "internal"
)

var (
	// workflowOutcomes counts how turns ended, per workflow.
	workflowOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_outcomes_total",
			Help:      "Total number of workflow turns by outcome",
		},
		[]string{"workflow", "outcome"},
	)

	// unauthorizedAttempts counts denied actors, per workflow.
	unauthorizedAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unauthorized_attempts_total",
			Help:      "Total number of operations denied by the authorization gate",
		},
		[]string{"workflow"},
	)

	// auditNotifications counts audit broadcasts.
	auditNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_notifications_total",
			Help:      "Total number of audit broadcasts by status",
		},
		[]string{"status"}, // status: delivered, failed, disabled
	)

	// transportErrors counts failed transport calls.
	transportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Total number of failed messaging calls by operation",
		},
		[]string{"op"}, // op: send, edit, delete, answer
	)

	// turnDuration is a histogram of turn handling time.
	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Histogram of update handling duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)
)

var allMetrics = []prometheus.Collector{
	workflowOutcomes,
	unauthorizedAttempts,
	auditNotifications,
	transportErrors,
	turnDuration,
}

// NewRegistry returns a registry holding the engine metrics plus the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// MetricsHandler serves reg in the Prometheus exposition format.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RecordTurnDuration observes the handling time of one update.
func RecordTurnDuration(kind string, seconds float64) {
	turnDuration.WithLabelValues(kind).Observe(seconds)
}

func recordOutcome(workflow, outcome string) {
	workflowOutcomes.WithLabelValues(workflow, outcome).Inc()
}

func recordUnauthorized(workflow string) {
	unauthorizedAttempts.WithLabelValues(workflow).Inc()
}

func recordAudit(status string) {
	auditNotifications.WithLabelValues(status).Inc()
}

func recordTransportError(op string) {
	transportErrors.WithLabelValues(op).Inc()
}
