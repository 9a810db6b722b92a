package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/liamcoop/casework/workflow"
)

var (
	// ErrInvalidCase is returned when a new case lacks its id or case type
	ErrInvalidCase = errors.New("invalid case")

	// ErrCaseExists is returned when creating a case whose id is already taken
	ErrCaseExists = errors.New("case already exists")
)

// CaseStore persists cases and their audit log.
// It implements workflow.TransitionStore.
type CaseStore struct {
	db *DB
}

// NewCaseStore creates a case store over db
func NewCaseStore(db *DB) *CaseStore {
	return &CaseStore{db: db}
}

// CreateCase inserts a new case in the CREATED state
func (s *CaseStore) CreateCase(ctx context.Context, c *workflow.Case) error {
	if c.ID == "" {
		return fmt.Errorf("%w: case id is required", ErrInvalidCase)
	}
	if c.CaseType == "" {
		return fmt.Errorf("%w: case type is required", ErrInvalidCase)
	}
	if c.Data == nil {
		c.Data = map[string]any{}
	}

	data, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal case data: %w", err)
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM cases WHERE id = ?)`), c.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check case existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrCaseExists, c.ID)
	}

	now := time.Now().UTC()
	c.CurrentState = workflow.StateCreated
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO cases (id, case_type, current_state, data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), c.ID, c.CaseType, string(c.CurrentState), string(data), c.Version, toMillis(now), toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

// GetCase retrieves a case by id. A missing case yields workflow.ErrCaseNotFound.
func (s *CaseStore) GetCase(ctx context.Context, id string) (*workflow.Case, error) {
	var (
		c                    workflow.Case
		state                string
		data                 []byte
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT id, case_type, current_state, data, version, created_at, updated_at
		FROM cases
		WHERE id = ?
	`), id).Scan(&c.ID, &c.CaseType, &state, &data, &c.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrCaseNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	st, err := workflow.ParseState(state)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &c.Data); err != nil {
		return nil, fmt.Errorf("case %s: failed to decode data: %w", id, err)
	}
	if c.Data == nil {
		c.Data = map[string]any{}
	}

	c.CurrentState = st
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// ListAudit returns the audit trail of a case, oldest first
func (s *CaseStore) ListAudit(ctx context.Context, caseID string) ([]workflow.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, case_id, from_state, to_state, reason, facts, created_at
		FROM audit_log
		WHERE case_id = ?
		ORDER BY created_at ASC, id ASC
	`), caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	records := []workflow.AuditRecord{}
	for rows.Next() {
		var (
			rec       workflow.AuditRecord
			from, to  string
			facts     []byte
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.CaseID, &from, &to, &rec.Reason, &facts, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.FromState = workflow.State(from)
		rec.ToState = workflow.State(to)
		rec.CreatedAt = fromMillis(createdAt)
		if err := json.Unmarshal(facts, &rec.Facts); err != nil {
			return nil, fmt.Errorf("audit record %s: failed to decode facts: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}
	return records, nil
}

// WithinTx runs fn in a single database transaction
func (s *CaseStore) WithinTx(ctx context.Context, fn func(tx workflow.TransitionTx) error) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(&caseTx{tx: tx, db: s.db})
	})
}

// caseTx is the write handle of one transition scope
type caseTx struct {
	tx *sql.Tx
	db *DB
}

// SetCaseState updates the state only if it still equals from, so two racing
// transitions decided from the same state cannot both commit.
func (t *caseTx) SetCaseState(ctx context.Context, caseID string, from, to workflow.State, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, t.db.Rebind(`
		UPDATE cases
		SET current_state = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND current_state = ?
	`), string(to), toMillis(at), caseID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update case state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var actual string
	err = t.tx.QueryRowContext(ctx, t.db.Rebind(`SELECT current_state FROM cases WHERE id = ?`), caseID).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", workflow.ErrCaseNotFound, caseID)
	}
	if err != nil {
		return fmt.Errorf("failed to read case state: %w", err)
	}
	return &workflow.StaleStateError{CaseID: caseID, Expected: from, Actual: workflow.State(actual)}
}

// AppendAudit inserts an audit record with a JSON snapshot of its facts
func (t *caseTx) AppendAudit(ctx context.Context, rec workflow.AuditRecord) error {
	facts, err := json.Marshal(rec.Facts)
	if err != nil {
		return fmt.Errorf("failed to marshal facts snapshot: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, t.db.Rebind(`
		INSERT INTO audit_log (id, case_id, from_state, to_state, reason, facts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), rec.ID, rec.CaseID, string(rec.FromState), string(rec.ToState), rec.Reason, string(facts), toMillis(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}
