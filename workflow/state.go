// Package workflow holds the case state machine, its guard table and the
// transition authority that persists every state change with its audit record.
package workflow

import (
	"fmt"
	"time"
)

// State is a case workflow state. The set is closed; use ParseState to
// convert untrusted input.
type State string

const (
	StateCreated     State = "CREATED"
	StateUnderReview State = "UNDER_REVIEW"
	StateWaitingInfo State = "WAITING_INFO"
	StateEscalated   State = "ESCALATED"
	StateApproved    State = "APPROVED"
	StateRejected    State = "REJECTED"
	StateClosed      State = "CLOSED"
)

// States lists every state in declaration order
func States() []State {
	return []State{
		StateCreated,
		StateUnderReview,
		StateWaitingInfo,
		StateEscalated,
		StateApproved,
		StateRejected,
		StateClosed,
	}
}

// ParseState converts a string into a known State
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown case state %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the declared states
func (s State) Valid() bool {
	switch s {
	case StateCreated, StateUnderReview, StateWaitingInfo, StateEscalated,
		StateApproved, StateRejected, StateClosed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

func (s State) String() string {
	return string(s)
}

// Case is a unit of work tracked through the workflow
type Case struct {
	ID           string         `json:"case_id"`
	CaseType     string         `json:"case_type"`
	CurrentState State          `json:"current_state"`
	Data         map[string]any `json:"data"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// AuditRecord is the append-only record of one completed transition
type AuditRecord struct {
	ID        string         `json:"id"`
	CaseID    string         `json:"case_id"`
	FromState State          `json:"from_state"`
	ToState   State          `json:"to_state"`
	Reason    string         `json:"reason"`
	Facts     map[string]any `json:"facts"`
	CreatedAt time.Time      `json:"created_at"`
}
