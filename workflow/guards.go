package workflow

import (
	"reflect"
	"slices"
)

// Guard is a fact that must hold a given value before a transition
type Guard struct {
	Fact     string `json:"fact"`
	Expected any    `json:"expected"`
}

type transitionKey struct {
	from, to State
}

// transitionGuards maps a transition to its required facts, in the order they
// are checked. A transition without an entry only needs structural legality.
var transitionGuards = map[transitionKey][]Guard{
	{StateCreated, StateUnderReview}: {
		{Fact: "required_fields_complete", Expected: true},
	},
	{StateUnderReview, StateApproved}: {
		{Fact: "risk_rules_passed", Expected: true},
		{Fact: "amount_within_threshold", Expected: true},
	},
	{StateUnderReview, StateRejected}: {
		{Fact: "validation_failed", Expected: true},
	},
	{StateUnderReview, StateEscalated}: {
		{Fact: "high_amount", Expected: true},
	},
	{StateUnderReview, StateWaitingInfo}: {
		{Fact: "missing_info_detected", Expected: true},
	},
	{StateApproved, StateClosed}: {
		{Fact: "no_pending_actions", Expected: true},
	},
	{StateRejected, StateClosed}: {
		{Fact: "no_pending_actions", Expected: true},
	},
	{StateEscalated, StateUnderReview}: {
		{Fact: "supervisor_review_complete", Expected: true},
	},
	{StateWaitingInfo, StateUnderReview}: {
		{Fact: "additional_info_provided", Expected: true},
	},
}

// RequiredGuards returns the guards registered for from -> to, or nil when
// the transition has none. The returned slice is a copy.
func RequiredGuards(from, to State) []Guard {
	return slices.Clone(transitionGuards[transitionKey{from, to}])
}

// EvaluateGuards checks the guards in order against a fact snapshot and
// returns a *GuardViolationError for the first one that does not hold.
// A missing fact is always a violation. Facts are compared strictly: the
// value must equal the expected value in both type and content.
func EvaluateGuards(required []Guard, facts map[string]any) error {
	for _, g := range required {
		actual, present := facts[g.Fact]
		if !present || !reflect.DeepEqual(actual, g.Expected) {
			return &GuardViolationError{
				Fact:     g.Fact,
				Expected: g.Expected,
				Actual:   actual,
				Present:  present,
			}
		}
	}
	return nil
}
