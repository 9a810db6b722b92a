package workflow

import (
	"errors"
	"testing"
)

func TestRequiredGuards(t *testing.T) {
	testCases := []struct {
		name     string
		from, to State
		want     []string
	}{
		{"intake", StateCreated, StateUnderReview, []string{"required_fields_complete"}},
		{"approve", StateUnderReview, StateApproved, []string{"risk_rules_passed", "amount_within_threshold"}},
		{"reject", StateUnderReview, StateRejected, []string{"validation_failed"}},
		{"escalate", StateUnderReview, StateEscalated, []string{"high_amount"}},
		{"request info", StateUnderReview, StateWaitingInfo, []string{"missing_info_detected"}},
		{"close approved", StateApproved, StateClosed, []string{"no_pending_actions"}},
		{"close rejected", StateRejected, StateClosed, []string{"no_pending_actions"}},
		{"supervisor back to review", StateEscalated, StateUnderReview, []string{"supervisor_review_complete"}},
		{"info provided", StateWaitingInfo, StateUnderReview, []string{"additional_info_provided"}},
		{"supervisor approves", StateEscalated, StateApproved, nil},
		{"supervisor rejects", StateEscalated, StateRejected, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			guards := RequiredGuards(tc.from, tc.to)
			if len(guards) != len(tc.want) {
				t.Fatalf("expected %d guards, got %v", len(tc.want), guards)
			}
			for i, g := range guards {
				if g.Fact != tc.want[i] {
					t.Errorf("guard %d: expected fact %q, got %q", i, tc.want[i], g.Fact)
				}
				if g.Expected != true {
					t.Errorf("guard %d: expected value true, got %v", i, g.Expected)
				}
			}
		})
	}
}

func TestGuardTableOnlyCoversLegalTransitions(t *testing.T) {
	for key := range transitionGuards {
		if !CanTransition(key.from, key.to) {
			t.Errorf("guard registered for illegal transition %s -> %s", key.from, key.to)
		}
	}
}

func TestEvaluateGuards(t *testing.T) {
	approve := RequiredGuards(StateUnderReview, StateApproved)

	testCases := []struct {
		name        string
		facts       map[string]any
		wantFact    string
		wantPresent bool
	}{
		{
			name:  "all satisfied",
			facts: map[string]any{"risk_rules_passed": true, "amount_within_threshold": true},
		},
		{
			name:        "first guard false",
			facts:       map[string]any{"risk_rules_passed": false, "amount_within_threshold": true},
			wantFact:    "risk_rules_passed",
			wantPresent: true,
		},
		{
			name:        "second guard missing",
			facts:       map[string]any{"risk_rules_passed": true},
			wantFact:    "amount_within_threshold",
			wantPresent: false,
		},
		{
			name:        "both missing reports first",
			facts:       map[string]any{},
			wantFact:    "risk_rules_passed",
			wantPresent: false,
		},
		{
			name:        "truthy string is not true",
			facts:       map[string]any{"risk_rules_passed": "true", "amount_within_threshold": true},
			wantFact:    "risk_rules_passed",
			wantPresent: true,
		},
		{
			name:        "one is not true",
			facts:       map[string]any{"risk_rules_passed": 1, "amount_within_threshold": true},
			wantFact:    "risk_rules_passed",
			wantPresent: true,
		},
		{
			name:        "nil facts",
			facts:       nil,
			wantFact:    "risk_rules_passed",
			wantPresent: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := EvaluateGuards(approve, tc.facts)
			if tc.wantFact == "" {
				if err != nil {
					t.Fatalf("expected guards to pass, got %v", err)
				}
				return
			}

			var gv *GuardViolationError
			if !errors.As(err, &gv) {
				t.Fatalf("expected *GuardViolationError, got %v", err)
			}
			if !errors.Is(err, ErrGuardViolation) {
				t.Error("guard violation should match ErrGuardViolation")
			}
			if gv.Fact != tc.wantFact {
				t.Errorf("expected violated fact %q, got %q", tc.wantFact, gv.Fact)
			}
			if gv.Present != tc.wantPresent {
				t.Errorf("expected present=%v, got %v", tc.wantPresent, gv.Present)
			}
		})
	}
}

func TestEvaluateGuardsNoGuards(t *testing.T) {
	if err := EvaluateGuards(nil, nil); err != nil {
		t.Errorf("empty guard list should always pass, got %v", err)
	}
}
