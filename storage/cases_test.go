package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/casework/workflow"
)

func createTestCase(t *testing.T, store *CaseStore, id string, data map[string]any) *workflow.Case {
	t.Helper()
	c := &workflow.Case{ID: id, CaseType: "loan", Data: data}
	require.NoError(t, store.CreateCase(context.Background(), c))
	return c
}

func TestCaseStoreCreateAndGet(t *testing.T) {
	store := NewCaseStore(newTestDB(t))
	ctx := context.Background()

	created := createTestCase(t, store, "case-1", map[string]any{"amount": 5000, "applicant": "ada"})
	assert.Equal(t, workflow.StateCreated, created.CurrentState)
	assert.Equal(t, int64(1), created.Version)

	got, err := store.GetCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "case-1", got.ID)
	assert.Equal(t, "loan", got.CaseType)
	assert.Equal(t, workflow.StateCreated, got.CurrentState)
	assert.Equal(t, float64(5000), got.Data["amount"])
	assert.Equal(t, "ada", got.Data["applicant"])
	assert.Equal(t, created.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
}

func TestCaseStoreCreateValidation(t *testing.T) {
	store := NewCaseStore(newTestDB(t))
	ctx := context.Background()

	require.ErrorIs(t, store.CreateCase(ctx, &workflow.Case{CaseType: "loan"}), ErrInvalidCase)
	require.ErrorIs(t, store.CreateCase(ctx, &workflow.Case{ID: "case-1"}), ErrInvalidCase)

	createTestCase(t, store, "case-1", nil)
	require.ErrorIs(t, store.CreateCase(ctx, &workflow.Case{ID: "case-1", CaseType: "loan"}), ErrCaseExists)
}

func TestCaseStoreGetNotFound(t *testing.T) {
	store := NewCaseStore(newTestDB(t))

	got, err := store.GetCase(context.Background(), "missing")
	require.ErrorIs(t, err, workflow.ErrCaseNotFound)
	assert.Nil(t, got)
}

func TestCaseStoreTransitionCommitsStateAndAudit(t *testing.T) {
	store := NewCaseStore(newTestDB(t))
	ctx := context.Background()
	createTestCase(t, store, "case-1", nil)

	authority := workflow.NewAuthority(store)
	rec, err := authority.Transition(ctx, workflow.TransitionRequest{
		CaseID: "case-1",
		From:   workflow.StateCreated,
		To:     workflow.StateUnderReview,
		Facts:  map[string]any{"required_fields_complete": true, "score": 0.5},
		Reason: "intake",
	})
	require.NoError(t, err)

	got, err := store.GetCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateUnderReview, got.CurrentState)
	assert.Equal(t, int64(2), got.Version)

	audit, err := store.ListAudit(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, rec.ID, audit[0].ID)
	assert.Equal(t, workflow.StateCreated, audit[0].FromState)
	assert.Equal(t, workflow.StateUnderReview, audit[0].ToState)
	assert.Equal(t, "intake", audit[0].Reason)
	assert.Equal(t, true, audit[0].Facts["required_fields_complete"])
	assert.Equal(t, 0.5, audit[0].Facts["score"])
}

func TestCaseStoreTransitionIsAtomic(t *testing.T) {
	db := newTestDB(t)
	store := NewCaseStore(db)
	ctx := context.Background()
	createTestCase(t, store, "case-1", nil)

	// the state update succeeds but the audit insert cannot
	_, err := db.ExecContext(ctx, `DROP TABLE audit_log`)
	require.NoError(t, err)

	authority := workflow.NewAuthority(store)
	_, err = authority.Transition(ctx, workflow.TransitionRequest{
		CaseID: "case-1",
		From:   workflow.StateCreated,
		To:     workflow.StateUnderReview,
		Facts:  map[string]any{"required_fields_complete": true},
	})
	require.Error(t, err)

	got, err := store.GetCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCreated, got.CurrentState, "state must roll back with the failed audit write")
	assert.Equal(t, int64(1), got.Version)
}

func TestCaseStoreWithinTxRollsBackOnError(t *testing.T) {
	store := NewCaseStore(newTestDB(t))
	ctx := context.Background()
	createTestCase(t, store, "case-1", nil)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx workflow.TransitionTx) error {
		if err := tx.SetCaseState(ctx, "case-1", workflow.StateCreated, workflow.StateUnderReview, time.Now()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCreated, got.CurrentState)
}

func TestCaseStoreWithinTxRollsBackOnPanic(t *testing.T) {
	store := NewCaseStore(newTestDB(t))
	ctx := context.Background()
	createTestCase(t, store, "case-1", nil)

	require.Panics(t, func() {
		_ = store.WithinTx(ctx, func(tx workflow.TransitionTx) error {
			_ = tx.SetCaseState(ctx, "case-1", workflow.StateCreated, workflow.StateUnderReview, time.Now())
			panic("unexpected")
		})
	})

	got, err := store.GetCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCreated, got.CurrentState)
}

func TestCaseStoreStaleState(t *testing.T) {
	store := NewCaseStore(newTestDB(t))
	ctx := context.Background()
	createTestCase(t, store, "case-1", nil)
	authority := workflow.NewAuthority(store)

	req := workflow.TransitionRequest{
		CaseID: "case-1",
		From:   workflow.StateCreated,
		To:     workflow.StateUnderReview,
		Facts:  map[string]any{"required_fields_complete": true},
	}
	_, err := authority.Transition(ctx, req)
	require.NoError(t, err)

	// a second decision taken from the old snapshot loses
	_, err = authority.Transition(ctx, req)
	var stale *workflow.StaleStateError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, workflow.StateCreated, stale.Expected)
	assert.Equal(t, workflow.StateUnderReview, stale.Actual)

	audit, err := store.ListAudit(ctx, "case-1")
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func TestCaseStoreConcurrentTransitionsOneWins(t *testing.T) {
	store := NewCaseStore(newTestDB(t))
	ctx := context.Background()
	createTestCase(t, store, "case-1", nil)
	authority := workflow.NewAuthority(store)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		staleErr int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := authority.Transition(ctx, workflow.TransitionRequest{
				CaseID: "case-1",
				From:   workflow.StateCreated,
				To:     workflow.StateUnderReview,
				Facts:  map[string]any{"required_fields_complete": true},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, workflow.ErrStaleState):
				staleErr++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, staleErr)

	audit, err := store.ListAudit(ctx, "case-1")
	require.NoError(t, err)
	assert.Len(t, audit, 1)
}

func TestCaseStoreTransitionUnknownCase(t *testing.T) {
	store := NewCaseStore(newTestDB(t))

	_, err := workflow.NewAuthority(store).Transition(context.Background(), workflow.TransitionRequest{
		CaseID: "missing",
		From:   workflow.StateCreated,
		To:     workflow.StateUnderReview,
		Facts:  map[string]any{"required_fields_complete": true},
	})
	require.ErrorIs(t, err, workflow.ErrCaseNotFound)
}

func TestCaseStoreListAuditOrdered(t *testing.T) {
	store := NewCaseStore(newTestDB(t))
	ctx := context.Background()
	createTestCase(t, store, "case-1", nil)
	authority := workflow.NewAuthority(store)

	steps := []workflow.TransitionRequest{
		{From: workflow.StateCreated, To: workflow.StateUnderReview, Facts: map[string]any{"required_fields_complete": true}},
		{From: workflow.StateUnderReview, To: workflow.StateApproved, Facts: map[string]any{"risk_rules_passed": true, "amount_within_threshold": true}},
		{From: workflow.StateApproved, To: workflow.StateClosed, Facts: map[string]any{"no_pending_actions": true}},
	}
	for _, step := range steps {
		step.CaseID = "case-1"
		_, err := authority.Transition(ctx, step)
		require.NoError(t, err)
	}

	audit, err := store.ListAudit(ctx, "case-1")
	require.NoError(t, err)
	require.Len(t, audit, 3)
	for i, step := range steps {
		assert.Equal(t, step.From, audit[i].FromState)
		assert.Equal(t, step.To, audit[i].ToState)
	}

	empty, err := store.ListAudit(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
