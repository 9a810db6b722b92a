// Package orchestrator sequences one workflow step: load the case, build its
// evaluation context, run the case type's rules and hand the facts to the
// transition authority.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/liamcoop/casework/casecontext"
	"github.com/liamcoop/casework/events"
	"github.com/liamcoop/casework/internal/logger"
	"github.com/liamcoop/casework/metrics"
	"github.com/liamcoop/casework/rules"
	"github.com/liamcoop/casework/workflow"
)

// CaseRepository loads cases
type CaseRepository interface {
	GetCase(ctx context.Context, id string) (*workflow.Case, error)
}

// RuleRepository returns the rule set of a case type
type RuleRepository interface {
	RulesForCaseType(ctx context.Context, caseType string) ([]rules.Rule, error)
}

// Transitioner applies a transition request
type Transitioner interface {
	Transition(ctx context.Context, req workflow.TransitionRequest) (workflow.AuditRecord, error)
}

// StepRequest asks for a case to be moved to a target state
type StepRequest struct {
	CaseID      string
	TargetState workflow.State
	Reason      string
}

// StepResult reports the facts and trace of a step and, when the transition
// committed, its audit record
type StepResult struct {
	CaseID    string                `json:"case_id"`
	FromState workflow.State        `json:"from_state"`
	ToState   workflow.State        `json:"to_state"`
	Facts     map[string]any        `json:"facts"`
	Trace     []rules.TraceEntry    `json:"trace"`
	Audit     *workflow.AuditRecord `json:"audit,omitempty"`
}

// Evaluation is the outcome of a dry run
type Evaluation struct {
	CaseID       string             `json:"case_id"`
	CurrentState workflow.State     `json:"current_state"`
	Context      map[string]any     `json:"context"`
	Facts        map[string]any     `json:"facts"`
	Trace        []rules.TraceEntry `json:"trace"`
}

// Orchestrator runs workflow steps
type Orchestrator struct {
	cases     CaseRepository
	rules     RuleRepository
	authority Transitioner
	builder   *casecontext.Builder
	publisher events.Publisher
	metrics   *metrics.Metrics
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithContextBuilder replaces the default context builder
func WithContextBuilder(b *casecontext.Builder) Option {
	return func(o *Orchestrator) {
		o.builder = b
	}
}

// WithPublisher publishes committed transitions
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithMetrics records rule outcomes and transitions
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an orchestrator
func New(cases CaseRepository, ruleRepo RuleRepository, authority Transitioner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cases:     cases,
		rules:     ruleRepo,
		authority: authority,
		builder:   casecontext.NewBuilder(nil),
		publisher: events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Step evaluates the case's rules and requests the transition to
// req.TargetState from the case's current state. When the transition is
// rejected the result still carries the facts and trace, and the error is
// returned alongside it.
func (o *Orchestrator) Step(ctx context.Context, req StepRequest) (StepResult, error) {
	start := time.Now()
	defer o.observeDuration("step", start)

	c, evalCtx, ruleSet, err := o.load(ctx, req.CaseID)
	if err != nil {
		return StepResult{}, err
	}

	res := rules.EvaluateRules(evalCtx, ruleSet)
	o.observeTrace(c.CaseType, res.Trace)

	result := StepResult{
		CaseID:    c.ID,
		FromState: c.CurrentState,
		ToState:   req.TargetState,
		Facts:     res.Facts,
		Trace:     res.Trace,
	}

	rec, err := o.authority.Transition(ctx, workflow.TransitionRequest{
		CaseID: c.ID,
		From:   c.CurrentState,
		To:     req.TargetState,
		Facts:  res.Facts,
		Reason: req.Reason,
	})
	if o.metrics != nil {
		o.metrics.ObserveTransition(c.CurrentState, req.TargetState, err)
	}
	if err != nil {
		logger.Info("transition rejected",
			"case_id", c.ID,
			"case_type", c.CaseType,
			"from_state", c.CurrentState,
			"to_state", req.TargetState,
			"err", err)
		return result, err
	}

	result.Audit = &rec
	logger.Info("transition committed",
		"case_id", c.ID,
		"from_state", rec.FromState,
		"to_state", rec.ToState)

	o.publish(ctx, c.CaseType, rec)
	return result, nil
}

// Evaluate runs the case's rules without transitioning
func (o *Orchestrator) Evaluate(ctx context.Context, caseID string) (Evaluation, error) {
	start := time.Now()
	defer o.observeDuration("evaluate", start)

	c, evalCtx, ruleSet, err := o.load(ctx, caseID)
	if err != nil {
		return Evaluation{}, err
	}

	res := rules.EvaluateRules(evalCtx, ruleSet)
	o.observeTrace(c.CaseType, res.Trace)

	return Evaluation{
		CaseID:       c.ID,
		CurrentState: c.CurrentState,
		Context:      evalCtx,
		Facts:        res.Facts,
		Trace:        res.Trace,
	}, nil
}

func (o *Orchestrator) load(ctx context.Context, caseID string) (*workflow.Case, map[string]any, []rules.Rule, error) {
	c, err := o.cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, nil, nil, err
	}

	evalCtx, err := o.builder.Build(c)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build context: %w", err)
	}

	ruleSet, err := o.rules.RulesForCaseType(ctx, c.CaseType)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, evalCtx, ruleSet, nil
}

// publish never fails the step: the transition is already committed
func (o *Orchestrator) publish(ctx context.Context, caseType string, rec workflow.AuditRecord) {
	if err := o.publisher.Publish(ctx, events.NewTransitionEvent(caseType, rec)); err != nil {
		logger.Error("failed to publish transition event",
			"case_id", rec.CaseID,
			"audit_id", rec.ID,
			"err", err)
		if o.metrics != nil {
			o.metrics.PublishFailed()
		}
	}
}

func (o *Orchestrator) observeTrace(caseType string, trace []rules.TraceEntry) {
	if o.metrics != nil {
		o.metrics.ObserveTrace(caseType, trace)
	}
}

func (o *Orchestrator) observeDuration(operation string, start time.Time) {
	if o.metrics != nil {
		o.metrics.ObserveDuration(operation, time.Since(start))
	}
}
