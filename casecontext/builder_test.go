package casecontext

import (
	"errors"
	"testing"
	"time"

	"github.com/liamcoop/casework/workflow"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func TestBuild(t *testing.T) {
	c := &workflow.Case{
		ID:           "case-1",
		CaseType:     "loan",
		CurrentState: workflow.StateUnderReview,
		Data: map[string]any{
			"amount":        5000,
			"case_id":       "spoofed",
			"current_state": "APPROVED",
		},
	}

	ctx, err := NewBuilder(fixedClock).Build(c)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if ctx["amount"] != 5000 {
		t.Errorf("case data should be copied, got %v", ctx["amount"])
	}
	if ctx[KeyCaseID] != "case-1" || ctx[KeyCurrentState] != "UNDER_REVIEW" || ctx[KeyCaseType] != "loan" {
		t.Errorf("case metadata should overwrite data: %v", ctx)
	}
	if _, ok := ctx[KeyDaysOpen]; ok {
		t.Error("days_open should only be derived when created_at is present")
	}

	ctx["amount"] = 1
	if c.Data["amount"] != 5000 || c.Data["case_id"] != "spoofed" {
		t.Error("building a context must not modify the case")
	}
}

func TestBuildDaysOpen(t *testing.T) {
	testCases := []struct {
		name      string
		createdAt string
		want      int
	}{
		{"date only", "2026-03-01", 14},
		{"naive datetime", "2026-03-14T12:00:01", 0},
		{"naive datetime with space", "2026-03-13 11:00:00", 2},
		{"rfc3339 utc", "2026-03-05T12:00:00Z", 10},
		{"rfc3339 offset", "2026-03-15T10:00:00+02:00", 0},
		{"fractional seconds", "2026-02-13T12:00:00.250", 29},
		{"future date rounds down", "2026-03-16", -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &workflow.Case{ID: "c", Data: map[string]any{"created_at": tc.createdAt}}
			ctx, err := NewBuilder(fixedClock).Build(c)
			if err != nil {
				t.Fatalf("Build() failed: %v", err)
			}
			if ctx[KeyDaysOpen] != tc.want {
				t.Errorf("days_open = %v, want %d", ctx[KeyDaysOpen], tc.want)
			}
			if ctx[KeyCreatedAt] != tc.createdAt {
				t.Error("created_at should be kept in the context")
			}
		})
	}
}

func TestBuildInvalidCreatedAt(t *testing.T) {
	for _, raw := range []any{"yesterday", "2026/03/01", 1710000000, nil} {
		c := &workflow.Case{ID: "c", Data: map[string]any{"created_at": raw}}
		_, err := NewBuilder(fixedClock).Build(c)
		if !errors.Is(err, ErrInvalidCreatedAt) {
			t.Errorf("created_at %v: expected ErrInvalidCreatedAt, got %v", raw, err)
		}
	}
}

func TestBuildNilData(t *testing.T) {
	ctx, err := NewBuilder(nil).Build(&workflow.Case{ID: "c", CaseType: "loan", CurrentState: workflow.StateCreated})
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if len(ctx) != 3 {
		t.Errorf("expected only case metadata, got %v", ctx)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	c := &workflow.Case{ID: "c", Data: map[string]any{"created_at": "2026-01-01", "x": 1}}
	b := NewBuilder(fixedClock)

	first, err := b.Build(c)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	second, _ := b.Build(c)
	if len(first) != len(second) || first[KeyDaysOpen] != second[KeyDaysOpen] {
		t.Errorf("same input should give the same context: %v vs %v", first, second)
	}
}
