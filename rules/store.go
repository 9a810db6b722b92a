package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var (
	// ErrRuleNotFound is returned when no rule has the requested id
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned when adding a rule whose id is already taken
	ErrRuleExists = errors.New("rule already exists")

	// ErrReadOnly is returned by stores that do not accept writes
	ErrReadOnly = errors.New("rule store is read-only")
)

// RuleStore manages rule persistence and retrieval.
// Rule ids are unique within a case type.
type RuleStore interface {
	// Add a new rule
	Add(ctx context.Context, rule *Rule) error

	// Get a rule by case type and id
	Get(ctx context.Context, caseType, id string) (*Rule, error)

	// ListByCaseType returns every rule of a case type, enabled or not, in
	// creation order. An unknown case type yields an empty list.
	ListByCaseType(ctx context.Context, caseType string) ([]Rule, error)

	// Update an existing rule
	Update(ctx context.Context, rule *Rule) error

	// Delete a rule
	Delete(ctx context.Context, caseType, id string) error
}

// InMemoryRuleStore implements RuleStore using an in-memory map.
// Thread-safe with RWMutex.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	order []string
	mu    sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]*Rule),
	}
}

func ruleKey(caseType, id string) string {
	return caseType + "/" + id
}

// Add adds a new rule to the store and sets its timestamps
func (s *InMemoryRuleStore) Add(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ruleKey(rule.CaseType, rule.ID)
	if _, exists := s.rules[key]; exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, rule.ID)
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	stored := *rule
	s.rules[key] = &stored
	s.order = append(s.order, key)
	return nil
}

// Get retrieves a rule by case type and id
func (s *InMemoryRuleStore) Get(_ context.Context, caseType, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[ruleKey(caseType, id)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	out := *rule
	return &out, nil
}

// ListByCaseType returns the rules of a case type in insertion order
func (s *InMemoryRuleStore) ListByCaseType(_ context.Context, caseType string) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Rule{}
	for _, key := range s.order {
		if r := s.rules[key]; r.CaseType == caseType {
			out = append(out, *r)
		}
	}
	return out, nil
}

// Update replaces an existing rule, preserving its CreatedAt timestamp
func (s *InMemoryRuleStore) Update(_ context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ruleKey(rule.CaseType, rule.ID)
	existing, exists := s.rules[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()
	stored := *rule
	s.rules[key] = &stored
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(_ context.Context, caseType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ruleKey(caseType, id)
	if _, exists := s.rules[key]; !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	delete(s.rules, key)
	s.order = slices.DeleteFunc(s.order, func(k string) bool { return k == key })
	return nil
}
