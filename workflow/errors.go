package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition is returned when the state machine forbids a transition
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrGuardViolation is returned when a legal transition's guards are not satisfied
	ErrGuardViolation = errors.New("guard violation")

	// ErrCaseNotFound is returned when a case id does not exist
	ErrCaseNotFound = errors.New("case not found")

	// ErrStaleState is returned when the persisted state no longer matches the
	// state a transition was decided from
	ErrStaleState = errors.New("stale case state")
)

// IllegalTransitionError names the rejected transition
type IllegalTransitionError struct {
	From State
	To   State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s -> %s", e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// GuardViolationError names the first unsatisfied guard.
// Present is false when the fact was absent, which is distinct from a fact
// holding a false or empty value.
type GuardViolationError struct {
	Fact     string
	Expected any
	Actual   any
	Present  bool
}

func (e *GuardViolationError) Error() string {
	if !e.Present {
		return fmt.Sprintf("guard violation: %q expected %v, fact missing", e.Fact, e.Expected)
	}
	return fmt.Sprintf("guard violation: %q expected %v, got %v", e.Fact, e.Expected, e.Actual)
}

func (e *GuardViolationError) Is(target error) bool {
	return target == ErrGuardViolation
}

// StaleStateError reports a case whose state moved since the caller read it
type StaleStateError struct {
	CaseID   string
	Expected State
	Actual   State
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("stale case state: case %s is %s, expected %s", e.CaseID, e.Actual, e.Expected)
}

func (e *StaleStateError) Is(target error) bool {
	return target == ErrStaleState
}
