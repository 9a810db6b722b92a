package rules

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	maxIdentifierLength = 100
	maxConditionDepth   = 32
	maxConditionNodes   = 1000

	// maxListValues caps the literal list of an in / not_in leaf, well below
	// the operator cost limit
	maxListValues = 10000
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.\-]*$`)

// ValidateRule checks a rule definition before it is stored.
//
// Unlike the engine, which judges a rule lazily and records the outcome in a
// trace, this walks the whole condition tree so that every structural problem
// is rejected at write time. It returns an error wrapping ErrInvalidDefinition.
func ValidateRule(rule Rule) error {
	if rule.defErr != nil {
		return rule.defErr
	}
	if rule.ID == "" || rule.ID == UnknownRuleID {
		return fmt.Errorf("%w: rule_id is required", ErrInvalidDefinition)
	}
	if err := validateIdentifier(rule.ID); err != nil {
		return fmt.Errorf("%w: invalid rule_id %q: %w", ErrInvalidDefinition, rule.ID, err)
	}

	if !rule.hasCondition() {
		return fmt.Errorf("%w: rule %q is missing required 'condition' key", ErrInvalidDefinition, rule.ID)
	}

	if len(rule.OutputFact) != 1 {
		return fmt.Errorf("%w: rule %q must define output_fact as a mapping with exactly one key, found %d keys",
			ErrInvalidDefinition, rule.ID, len(rule.OutputFact))
	}
	for name := range rule.OutputFact {
		if err := validateIdentifier(name); err != nil {
			return fmt.Errorf("%w: invalid fact name %q in rule %q: %w", ErrInvalidDefinition, name, rule.ID, err)
		}
	}

	nodes := 0
	if err := validateNode(rule.Condition, 0, &nodes); err != nil {
		return fmt.Errorf("rule %q: %w", rule.ID, err)
	}
	return nil
}

// ValidateRules validates every rule and reports all failures together
func ValidateRules(rules []Rule) error {
	var errs []error
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := ValidateRule(r); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate rule_id %q", ErrInvalidDefinition, r.ID))
		}
		seen[r.ID] = true
	}
	return errors.Join(errs...)
}

// validateNode checks the shape of every node without reading a context
func validateNode(node any, depth int, count *int) error {
	*count++
	if *count > maxConditionNodes {
		return fmt.Errorf("%w: condition has more than %d nodes", ErrInvalidDefinition, maxConditionNodes)
	}
	if depth > maxConditionDepth {
		return fmt.Errorf("%w: condition nesting exceeds depth %d", ErrInvalidDefinition, maxConditionDepth)
	}

	n, err := asNode(node)
	if err != nil {
		return err
	}

	_, hasAll := n[keyAll]
	_, hasAny := n[keyAny]
	if (hasAll || hasAny) && hasLeafKey(n) {
		return fmt.Errorf("%w: node cannot be both logical (all/any) and comparison (field/operator/value)", ErrInvalidDefinition)
	}
	if hasAll && hasAny {
		return fmt.Errorf("%w: node cannot contain both 'all' and 'any'", ErrInvalidDefinition)
	}

	if hasAll || hasAny {
		key := keyAll
		if hasAny {
			key = keyAny
		}
		children, err := logicalChildren(n, key)
		if err != nil {
			return err
		}
		for i, child := range children {
			if err := validateNode(child, depth+1, count); err != nil {
				return fmt.Errorf("%s[%d]: %w", key, i, err)
			}
		}
		return nil
	}

	if err := checkLeafKeys(n); err != nil {
		return err
	}
	if _, ok := lookupOperator(n[keyOperator]); !ok {
		return fmt.Errorf("%w: unsupported operator %v, allowed operators: %v",
			ErrInvalidDefinition, n[keyOperator], Operators())
	}
	field, ok := n[keyField].(string)
	if !ok {
		return fmt.Errorf("%w: field must be a string, got %T", ErrInvalidDefinition, n[keyField])
	}
	if err := validateIdentifier(field); err != nil {
		return fmt.Errorf("%w: invalid field %q: %w", ErrInvalidDefinition, field, err)
	}
	if list, ok := n[keyValue].([]any); ok && len(list) > maxListValues {
		return fmt.Errorf("%w: value list of field %q has %d entries, maximum is %d",
			ErrInvalidDefinition, field, len(list), maxListValues)
	}
	return nil
}

// validateIdentifier validates a rule id, fact name or context field name
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierLength)
	}
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern %s", validIdentifier.String())
	}
	return nil
}
