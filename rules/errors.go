package rules

import "errors"

// Error kinds raised by the condition evaluator. The rule engine maps each of
// them to a trace status instead of returning it.
var (
	// ErrInvalidDefinition marks a malformed condition, rule or rule collection
	ErrInvalidDefinition = errors.New("invalid rule definition")

	// ErrMissingContextField marks a condition that reads a field absent from the context
	ErrMissingContextField = errors.New("missing context field")

	// ErrEvaluationType marks a comparison between incompatible operands
	ErrEvaluationType = errors.New("evaluation type error")

	// ErrEvaluationLimit marks a comparison stopped by the operator cost limit.
	// It is traced as an engine error, not a type error.
	ErrEvaluationLimit = errors.New("evaluation cost limit exceeded")
)

// ErrorKind names a failure category in a trace entry
type ErrorKind string

const (
	KindInvalidDefinition   ErrorKind = "InvalidDefinition"
	KindMissingContextField ErrorKind = "MissingContextField"
	KindEvaluationType      ErrorKind = "EvaluationTypeError"
	KindEngineError         ErrorKind = "EngineError"
)

// TraceError is the serializable error attached to a failed trace entry
type TraceError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *TraceError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// classify maps an evaluation error onto its trace status and error kind.
// Anything that is not one of the known kinds is an engine bug.
func classify(err error) (EvaluationStatus, ErrorKind) {
	switch {
	case errors.Is(err, ErrInvalidDefinition):
		return StatusFailedInvalidDefinition, KindInvalidDefinition
	case errors.Is(err, ErrMissingContextField):
		return StatusFailedMissingContext, KindMissingContextField
	case errors.Is(err, ErrEvaluationType):
		return StatusFailedTypeError, KindEvaluationType
	default:
		return StatusFailedEngineError, KindEngineError
	}
}
