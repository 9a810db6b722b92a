package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadRuleFile reads a YAML or JSON rule file. The format is chosen by
// extension; .json is JSON and anything else is YAML.
func LoadRuleFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseRulesJSON(data)
	}
	return ParseRulesYAML(data)
}

// FileRuleStore is a read-only RuleStore seeded from rule files, for
// deployments that keep rule sets in version control. Rules without a
// case_type take the store's default case type.
type FileRuleStore struct {
	*InMemoryRuleStore
}

// NewFileRuleStore loads every file in paths in order. Each rule must pass
// ValidateRule; the first failure names its file and index.
func NewFileRuleStore(defaultCaseType string, paths ...string) (*FileRuleStore, error) {
	mem := NewInMemoryRuleStore()
	ctx := context.Background()

	for _, path := range paths {
		loaded, err := LoadRuleFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for i := range loaded {
			r := loaded[i]
			if r.CaseType == "" {
				r.CaseType = defaultCaseType
			}
			if err := validateForWrite(&r); err != nil {
				return nil, fmt.Errorf("%s: rule at index %d: %w", path, i, err)
			}
			if err := mem.Add(ctx, &r); err != nil {
				return nil, fmt.Errorf("%s: rule at index %d: %w", path, i, err)
			}
		}
	}
	return &FileRuleStore{InMemoryRuleStore: mem}, nil
}

// Add is not supported on file-backed rule sets
func (s *FileRuleStore) Add(context.Context, *Rule) error {
	return ErrReadOnly
}

// Update is not supported on file-backed rule sets
func (s *FileRuleStore) Update(context.Context, *Rule) error {
	return ErrReadOnly
}

// Delete is not supported on file-backed rule sets
func (s *FileRuleStore) Delete(context.Context, string, string) error {
	return ErrReadOnly
}
