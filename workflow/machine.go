package workflow

import "slices"

// allowedTransitions is the sole authority on structural legality.
// It is never written after initialization.
var allowedTransitions = map[State][]State{
	StateCreated:     {StateUnderReview},
	StateUnderReview: {StateApproved, StateRejected, StateEscalated, StateWaitingInfo},
	StateWaitingInfo: {StateUnderReview},
	StateEscalated:   {StateUnderReview, StateApproved, StateRejected},
	StateApproved:    {StateClosed},
	StateRejected:    {StateClosed},
	StateClosed:      {},
}

// AllowedTargets returns the states directly reachable from from.
// The returned slice is a copy.
func AllowedTargets(from State) []State {
	return slices.Clone(allowedTransitions[from])
}

// CanTransition reports whether the state machine permits from -> to
func CanTransition(from, to State) bool {
	return slices.Contains(allowedTransitions[from], to)
}
