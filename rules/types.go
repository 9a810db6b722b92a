package rules

import "time"

// UnknownRuleID is used for rules that do not carry a rule_id
const UnknownRuleID = "<unknown>"

// Condition is a single node of a condition tree: {"all": [...]}, {"any": [...]}
// or {"field": ..., "operator": ..., "value": ...}
type Condition = map[string]any

// Rule is a declarative rule definition.
//
// Condition and OutputFact are kept as decoded so that a malformed rule can
// still be carried to the engine and reported in its trace. A nil Condition
// means the definition has no condition.
type Rule struct {
	ID         string         `json:"rule_id" yaml:"rule_id"`
	CaseType   string         `json:"case_type,omitempty" yaml:"case_type,omitempty"`
	Priority   int            `json:"priority" yaml:"priority"`
	Enabled    bool           `json:"enabled" yaml:"enabled"`
	Condition  any            `json:"condition,omitempty" yaml:"condition,omitempty"`
	OutputFact map[string]any `json:"output_fact,omitempty" yaml:"output_fact,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitzero" yaml:"-"`
	UpdatedAt  time.Time      `json:"updated_at,omitzero" yaml:"-"`

	// conditionNull marks a condition key that is present with a null value
	conditionNull bool
	// defErr is set when the rule's metadata could not be decoded
	defErr error
}

// hasCondition reports whether the definition carries a condition key
func (r Rule) hasCondition() bool {
	return r.Condition != nil || r.conditionNull
}

// EvaluationStatus is the outcome recorded for each rule in a trace
type EvaluationStatus string

const (
	StatusEvaluatedTrue           EvaluationStatus = "EVALUATED_TRUE"
	StatusEvaluatedFalse          EvaluationStatus = "EVALUATED_FALSE"
	StatusSkippedDisabled         EvaluationStatus = "SKIPPED_DISABLED"
	StatusFailedInvalidDefinition EvaluationStatus = "FAILED_INVALID_DEFINITION"
	StatusFailedMissingContext    EvaluationStatus = "FAILED_MISSING_CONTEXT"
	StatusFailedTypeError         EvaluationStatus = "FAILED_TYPE_ERROR"
	StatusFailedEngineError       EvaluationStatus = "FAILED_ENGINE_ERROR"
)

// Failed reports whether the status is one of the FAILED_* statuses
func (s EvaluationStatus) Failed() bool {
	switch s {
	case StatusFailedInvalidDefinition, StatusFailedMissingContext,
		StatusFailedTypeError, StatusFailedEngineError:
		return true
	}
	return false
}

// TraceEntry records how a single rule was handled during one evaluation
type TraceEntry struct {
	RuleID          string           `json:"rule_id"`
	Priority        int              `json:"priority"`
	Evaluated       bool             `json:"evaluated"`
	Status          EvaluationStatus `json:"evaluation_status"`
	ConditionResult *bool            `json:"condition_result"`
	ProducedFact    map[string]any   `json:"produced_fact"`
	Error           *TraceError      `json:"error"`
}

// Result is the outcome of evaluating a rule collection against a context.
// Trace holds exactly one entry per input rule, in evaluation order.
type Result struct {
	Facts map[string]any `json:"facts"`
	Trace []TraceEntry   `json:"trace"`
}
