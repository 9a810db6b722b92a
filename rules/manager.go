package rules

import (
	"context"
	"fmt"
)

// RuleSetManager is the rule retrieval service for the workflow: it serves
// the rule set of a case type through a cache and keeps the cache coherent
// with writes. Every write is validated before it reaches the store.
type RuleSetManager struct {
	store RuleStore
	cache RulesCache
}

// NewRuleSetManager creates a manager over store. A nil cache gets an
// in-memory cache with the default configuration.
func NewRuleSetManager(store RuleStore, cache RulesCache) *RuleSetManager {
	if cache == nil {
		cache = NewInMemoryRulesCache(DefaultCacheConfig())
	}
	return &RuleSetManager{
		store: store,
		cache: cache,
	}
}

// RulesForCaseType returns every rule of a case type, enabled or not, in
// creation order. An unknown case type yields an empty set.
func (m *RuleSetManager) RulesForCaseType(ctx context.Context, caseType string) ([]Rule, error) {
	if cached, ok := m.cache.Get(ctx, caseType); ok {
		return cached, nil
	}

	rules, err := m.store.ListByCaseType(ctx, caseType)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for case type %s: %w", caseType, err)
	}
	m.cache.Set(ctx, caseType, rules)
	return rules, nil
}

// GetRule retrieves a single rule
func (m *RuleSetManager) GetRule(ctx context.Context, caseType, id string) (*Rule, error) {
	return m.store.Get(ctx, caseType, id)
}

// AddRule validates and stores a new rule
func (m *RuleSetManager) AddRule(ctx context.Context, rule *Rule) error {
	if err := validateForWrite(rule); err != nil {
		return err
	}
	if err := m.store.Add(ctx, rule); err != nil {
		return err
	}

	m.cache.Invalidate(ctx, rule.CaseType)
	return nil
}

// UpdateRule validates and replaces an existing rule
func (m *RuleSetManager) UpdateRule(ctx context.Context, rule *Rule) error {
	if err := validateForWrite(rule); err != nil {
		return err
	}
	if err := m.store.Update(ctx, rule); err != nil {
		return err
	}

	m.cache.Invalidate(ctx, rule.CaseType)
	return nil
}

// DeleteRule removes a rule
func (m *RuleSetManager) DeleteRule(ctx context.Context, caseType, id string) error {
	if err := m.store.Delete(ctx, caseType, id); err != nil {
		return err
	}

	m.cache.Invalidate(ctx, caseType)
	return nil
}

func validateForWrite(rule *Rule) error {
	if err := validateIdentifier(rule.CaseType); err != nil {
		return fmt.Errorf("%w: invalid case_type %q: %w", ErrInvalidDefinition, rule.CaseType, err)
	}
	return ValidateRule(*rule)
}
