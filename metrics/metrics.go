// Package metrics exposes Prometheus collectors for rule outcomes and case transitions.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/liamcoop/casework/rules"
	"github.com/liamcoop/casework/workflow"
)

// Transition outcomes
const (
	OutcomeCommitted      = "committed"
	OutcomeIllegal        = "illegal"
	OutcomeGuardViolation = "guard_violation"
	OutcomeStale          = "stale"
	OutcomeNotFound       = "not_found"
	OutcomeError          = "error"
)

// Metrics holds the service collectors
type Metrics struct {
	RuleEvaluations *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	PublishFailures prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RuleEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "casework",
				Name:      "rule_evaluations_total",
				Help:      "Rule evaluations by case type and evaluation status",
			},
			[]string{"case_type", "status"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "casework",
				Name:      "transitions_total",
				Help:      "Transition attempts by source state, target state and outcome",
			},
			[]string{"from_state", "to_state", "outcome"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "casework",
				Name:      "step_duration_seconds",
				Help:      "Duration of workflow steps and dry-run evaluations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PublishFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "casework",
				Name:      "event_publish_failures_total",
				Help:      "Transition events that could not be published",
			},
		),
	}

	reg.MustRegister(m.RuleEvaluations, m.Transitions, m.StepDuration, m.PublishFailures)
	return m
}

// ObserveTrace counts every trace entry by status
func (m *Metrics) ObserveTrace(caseType string, trace []rules.TraceEntry) {
	for _, e := range trace {
		m.RuleEvaluations.WithLabelValues(caseType, string(e.Status)).Inc()
	}
}

// ObserveTransition counts a transition attempt by its outcome
func (m *Metrics) ObserveTransition(from, to workflow.State, err error) {
	m.Transitions.WithLabelValues(string(from), string(to), TransitionOutcome(err)).Inc()
}

// ObserveDuration records how long an operation took
func (m *Metrics) ObserveDuration(operation string, d time.Duration) {
	m.StepDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// PublishFailed counts an event that could not be published
func (m *Metrics) PublishFailed() {
	m.PublishFailures.Inc()
}

// TransitionOutcome maps a transition error onto its outcome label
func TransitionOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.Is(err, workflow.ErrIllegalTransition):
		return OutcomeIllegal
	case errors.Is(err, workflow.ErrGuardViolation):
		return OutcomeGuardViolation
	case errors.Is(err, workflow.ErrStaleState):
		return OutcomeStale
	case errors.Is(err, workflow.ErrCaseNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
