// Package casecontext turns a case into the flat evaluation context consumed
// by the rule engine.
package casecontext

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/liamcoop/casework/workflow"
)

// Keys written by the builder. They overwrite case data of the same name.
const (
	KeyCaseID       = "case_id"
	KeyCurrentState = "current_state"
	KeyCaseType     = "case_type"
	KeyCreatedAt    = "created_at"
	KeyDaysOpen     = "days_open"
)

// ErrInvalidCreatedAt is returned when data["created_at"] cannot be read as a date
var ErrInvalidCreatedAt = errors.New("invalid created_at")

// createdAtLayouts are tried in order. Values without a zone are read in the
// clock's location.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// Builder builds evaluation contexts against a clock
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a builder. A nil clock uses time.Now.
func NewBuilder(now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{now: now}
}

// Build returns a fresh context: a shallow copy of c.Data overlaid with the
// case id, state and type, plus days_open when data carries created_at.
// The case is not modified.
func (b *Builder) Build(c *workflow.Case) (map[string]any, error) {
	ctx := make(map[string]any, len(c.Data)+4)
	maps.Copy(ctx, c.Data)

	ctx[KeyCaseID] = c.ID
	ctx[KeyCurrentState] = string(c.CurrentState)
	ctx[KeyCaseType] = c.CaseType

	if raw, ok := c.Data[KeyCreatedAt]; ok {
		days, err := daysOpen(raw, b.now())
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", c.ID, err)
		}
		ctx[KeyDaysOpen] = days
	}
	return ctx, nil
}

// daysOpen counts whole days between created and now, rounding down
func daysOpen(raw any, now time.Time) (int, error) {
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("%w: expected an ISO 8601 string, got %T", ErrInvalidCreatedAt, raw)
	}

	for _, layout := range createdAtLayouts {
		created, err := time.ParseInLocation(layout, s, now.Location())
		if err != nil {
			continue
		}
		days := math.Floor(now.Sub(created).Hours() / 24)
		return int(days), nil
	}
	return 0, fmt.Errorf("%w: %q is not an ISO 8601 date", ErrInvalidCreatedAt, s)
}
