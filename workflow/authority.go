package workflow

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// TransitionStore is the atomic persistence primitive used by the Authority.
// WithinTx must commit every write made through tx when fn returns nil and
// make none of them visible when fn returns an error.
type TransitionStore interface {
	WithinTx(ctx context.Context, fn func(tx TransitionTx) error) error
}

// TransitionTx is the write handle of one transition scope
type TransitionTx interface {
	// SetCaseState moves a case from one state to another. It fails with
	// ErrCaseNotFound or a *StaleStateError when the persisted state is not from.
	SetCaseState(ctx context.Context, caseID string, from, to State, at time.Time) error

	// AppendAudit records a completed transition
	AppendAudit(ctx context.Context, rec AuditRecord) error
}

// TransitionRequest describes a requested state change
type TransitionRequest struct {
	CaseID string
	From   State
	To     State
	Facts  map[string]any
	Reason string
}

// Authority validates transitions against the state machine and guard table
// and persists accepted ones. It is the only component that writes case state.
type Authority struct {
	store TransitionStore
	now   func() time.Time
	newID func() string
}

// AuthorityOption customizes an Authority
type AuthorityOption func(*Authority)

// WithClock sets the clock used to timestamp transitions
func WithClock(now func() time.Time) AuthorityOption {
	return func(a *Authority) { a.now = now }
}

// WithIDGenerator sets the generator for audit record ids
func WithIDGenerator(newID func() string) AuthorityOption {
	return func(a *Authority) { a.newID = newID }
}

// NewAuthority creates a transition authority over store
func NewAuthority(store TransitionStore, opts ...AuthorityOption) *Authority {
	a := &Authority{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: newAuditID,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// newAuditID returns a time-ordered UUIDv7 so records sharing a timestamp
// still list in commit order
func newAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Transition moves a case from req.From to req.To.
//
// Structural legality is checked first, then the guards registered for the
// pair, and only then is storage touched. The state update and the audit
// record are written in one transaction: both commit or neither does.
// Errors are *IllegalTransitionError, *GuardViolationError, *StaleStateError,
// ErrCaseNotFound or a storage failure; none leaves a partial write behind.
func (a *Authority) Transition(ctx context.Context, req TransitionRequest) (AuditRecord, error) {
	if !CanTransition(req.From, req.To) {
		return AuditRecord{}, &IllegalTransitionError{From: req.From, To: req.To}
	}

	if err := EvaluateGuards(RequiredGuards(req.From, req.To), req.Facts); err != nil {
		return AuditRecord{}, err
	}

	at := a.now()
	rec := AuditRecord{
		ID:        a.newID(),
		CaseID:    req.CaseID,
		FromState: req.From,
		ToState:   req.To,
		Reason:    req.Reason,
		Facts:     maps.Clone(req.Facts),
		CreatedAt: at,
	}
	if rec.Facts == nil {
		rec.Facts = map[string]any{}
	}

	err := a.store.WithinTx(ctx, func(tx TransitionTx) error {
		if err := tx.SetCaseState(ctx, req.CaseID, req.From, req.To, at); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, rec); err != nil {
			return fmt.Errorf("failed to append audit record: %w", err)
		}
		return nil
	})
	if err != nil {
		return AuditRecord{}, err
	}
	return rec, nil
}
