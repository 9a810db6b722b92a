//go:build integration
// +build integration

package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/casework/rules"
	"github.com/liamcoop/casework/storage"
	"github.com/liamcoop/casework/workflow"
)

// setupTestDB starts a PostgreSQL container and returns a migrated handle
func setupTestDB(t *testing.T) (*storage.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "casework_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=casework_test sslmode=disable", host, port.Port())

	// Wait for connection to be available
	var db *storage.DB
	for i := 0; i < 30; i++ {
		db, err = storage.Open(ctx, storage.Postgres, connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestPostgresCaseStore_TransitionLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := storage.NewCaseStore(db)
	caseID := uuid.NewString()

	err := store.CreateCase(ctx, &workflow.Case{
		ID:       caseID,
		CaseType: "loan",
		Data:     map[string]any{"amount": 1200, "applicant": "ada"},
	})
	if err != nil {
		t.Fatalf("Failed to create case: %v", err)
	}

	authority := workflow.NewAuthority(store)
	steps := []workflow.TransitionRequest{
		{From: workflow.StateCreated, To: workflow.StateUnderReview, Facts: map[string]any{"required_fields_complete": true}},
		{From: workflow.StateUnderReview, To: workflow.StateApproved, Facts: map[string]any{"risk_rules_passed": true, "amount_within_threshold": true}},
	}
	for _, step := range steps {
		step.CaseID = caseID
		step.Reason = "integration"
		if _, err := authority.Transition(ctx, step); err != nil {
			t.Fatalf("Transition %s -> %s failed: %v", step.From, step.To, err)
		}
	}

	got, err := store.GetCase(ctx, caseID)
	if err != nil {
		t.Fatalf("Failed to get case: %v", err)
	}
	if got.CurrentState != workflow.StateApproved {
		t.Errorf("Expected APPROVED, got %s", got.CurrentState)
	}
	if got.Data["applicant"] != "ada" {
		t.Errorf("Expected case data to round trip, got %v", got.Data)
	}

	audit, err := store.ListAudit(ctx, caseID)
	if err != nil {
		t.Fatalf("Failed to list audit: %v", err)
	}
	if len(audit) != 2 {
		t.Fatalf("Expected 2 audit records, got %d", len(audit))
	}
	if audit[1].Facts["risk_rules_passed"] != true {
		t.Errorf("Expected facts snapshot in audit, got %v", audit[1].Facts)
	}

	// A decision taken from a stale snapshot must lose
	_, err = authority.Transition(ctx, workflow.TransitionRequest{
		CaseID: caseID,
		From:   workflow.StateUnderReview,
		To:     workflow.StateRejected,
		Facts:  map[string]any{"validation_failed": true},
	})
	if !errors.Is(err, workflow.ErrStaleState) {
		t.Errorf("Expected ErrStaleState, got %v", err)
	}
}

func TestPostgresCaseStore_Atomicity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := storage.NewCaseStore(db)
	caseID := uuid.NewString()
	if err := store.CreateCase(ctx, &workflow.Case{ID: caseID, CaseType: "loan"}); err != nil {
		t.Fatalf("Failed to create case: %v", err)
	}

	if _, err := db.ExecContext(ctx, `DROP TABLE audit_log`); err != nil {
		t.Fatalf("Failed to drop audit table: %v", err)
	}

	_, err := workflow.NewAuthority(store).Transition(ctx, workflow.TransitionRequest{
		CaseID: caseID,
		From:   workflow.StateCreated,
		To:     workflow.StateUnderReview,
		Facts:  map[string]any{"required_fields_complete": true},
	})
	if err == nil {
		t.Fatal("Expected transition to fail without an audit table")
	}

	got, err := store.GetCase(ctx, caseID)
	if err != nil {
		t.Fatalf("Failed to get case: %v", err)
	}
	if got.CurrentState != workflow.StateCreated {
		t.Errorf("Expected state to stay CREATED, got %s", got.CurrentState)
	}
}

func TestPostgresRuleStore_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := rules.NewSQLRuleStore(db)

	rule := &rules.Rule{
		ID:         "high_amount",
		CaseType:   "loan",
		Priority:   1,
		Enabled:    true,
		Condition:  map[string]any{"field": "amount", "operator": ">", "value": 10000},
		OutputFact: map[string]any{"high_amount": true},
	}
	if err := store.Add(ctx, rule); err != nil {
		t.Fatalf("Failed to add rule: %v", err)
	}
	if err := store.Add(ctx, rule); !errors.Is(err, rules.ErrRuleExists) {
		t.Errorf("Expected ErrRuleExists, got %v", err)
	}

	list, err := store.ListByCaseType(ctx, "loan")
	if err != nil {
		t.Fatalf("Failed to list rules: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("Expected 1 rule, got %d", len(list))
	}

	result := rules.EvaluateRules(map[string]any{"amount": 20000}, list)
	if result.Facts["high_amount"] != true {
		t.Errorf("Expected stored rule to fire, got %v", result.Facts)
	}

	rule.Enabled = false
	if err := store.Update(ctx, rule); err != nil {
		t.Fatalf("Failed to update rule: %v", err)
	}
	updated, err := store.Get(ctx, "loan", "high_amount")
	if err != nil {
		t.Fatalf("Failed to get rule: %v", err)
	}
	if updated.Enabled {
		t.Error("Expected rule to be disabled after update")
	}

	if err := store.Delete(ctx, "loan", "high_amount"); err != nil {
		t.Fatalf("Failed to delete rule: %v", err)
	}
	if _, err := store.Get(ctx, "loan", "high_amount"); !errors.Is(err, rules.ErrRuleNotFound) {
		t.Errorf("Expected ErrRuleNotFound, got %v", err)
	}
}
