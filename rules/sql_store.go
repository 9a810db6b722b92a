package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/liamcoop/casework/storage"
)

// SQLRuleStore implements RuleStore on the rules table of a Postgres or SQLite database
type SQLRuleStore struct {
	db *storage.DB
}

// NewSQLRuleStore creates a new SQL-backed RuleStore
func NewSQLRuleStore(db *storage.DB) *SQLRuleStore {
	return &SQLRuleStore{db: db}
}

// encodeDefinition builds the JSON document stored in the definition column.
// The condition key is written only when the rule has one, null included.
func encodeDefinition(rule *Rule) (string, error) {
	def := make(map[string]any, 2)
	if rule.hasCondition() {
		def[keyCondition] = rule.Condition
	}
	if rule.OutputFact != nil {
		def["output_fact"] = rule.OutputFact
	}

	b, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("failed to marshal rule definition: %w", err)
	}
	return string(b), nil
}

// Add inserts a new rule after the existing rules of its case type
func (s *SQLRuleStore) Add(ctx context.Context, rule *Rule) error {
	def, err := encodeDefinition(rule)
	if err != nil {
		return err
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE case_type = ? AND id = ?)
	`), rule.CaseType, rule.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, rule.ID)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO rules (id, case_type, priority, enabled, definition, seq, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM rules), ?, ?)
	`), rule.ID, rule.CaseType, rule.Priority, rule.Enabled, def, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	rule.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	rule.UpdatedAt = rule.CreatedAt
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		r                    Rule
		def                  []byte
		createdAt, updatedAt int64
	)
	if err := row.Scan(&r.ID, &r.CaseType, &r.Priority, &r.Enabled, &def, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var d map[string]any
	if err := json.Unmarshal(def, &d); err != nil {
		return nil, fmt.Errorf("rule %s: failed to decode definition: %w", r.ID, err)
	}
	cond, hasCondition := d[keyCondition]
	r.Condition = cond
	r.conditionNull = hasCondition && cond == nil
	if of, ok := d["output_fact"].(map[string]any); ok {
		r.OutputFact = of
	}
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &r, nil
}

// Get retrieves a rule by case type and id
func (s *SQLRuleStore) Get(ctx context.Context, caseType, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT id, case_type, priority, enabled, definition, created_at, updated_at
		FROM rules
		WHERE case_type = ? AND id = ?
	`), caseType, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListByCaseType returns every rule of a case type in creation order
func (s *SQLRuleStore) ListByCaseType(ctx context.Context, caseType string) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
		SELECT id, case_type, priority, enabled, definition, created_at, updated_at
		FROM rules
		WHERE case_type = ?
		ORDER BY seq ASC, id ASC
	`), caseType)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	out := []Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return out, nil
}

// Update modifies an existing rule. Its position in creation order is kept.
func (s *SQLRuleStore) Update(ctx context.Context, rule *Rule) error {
	def, err := encodeDefinition(rule)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE rules
		SET priority = ?, enabled = ?, definition = ?, updated_at = ?
		WHERE case_type = ? AND id = ?
	`), rule.Priority, rule.Enabled, def, now.UnixMilli(), rule.CaseType, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
	}

	rule.UpdatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	return nil
}

// Delete removes a rule from the database
func (s *SQLRuleStore) Delete(ctx context.Context, caseType, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		DELETE FROM rules
		WHERE case_type = ? AND id = ?
	`), caseType, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return nil
}
