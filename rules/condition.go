package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	keyAll      = "all"
	keyAny      = "any"
	keyField    = "field"
	keyOperator = "operator"
	keyValue    = "value"

	keyCondition = "condition"
)

var leafKeys = []string{keyField, keyOperator, keyValue}

// EvaluateCondition evaluates a condition tree against a context.
//
// Every node is validated before it is evaluated. Logical nodes short-circuit
// like their boolean counterparts, so children after the deciding one are not
// visited. The returned error wraps ErrInvalidDefinition, ErrMissingContextField
// or ErrEvaluationType.
func EvaluateCondition(node any, context map[string]any) (bool, error) {
	n, err := asNode(node)
	if err != nil {
		return false, err
	}

	_, hasAll := n[keyAll]
	_, hasAny := n[keyAny]
	if (hasAll || hasAny) && hasLeafKey(n) {
		return false, fmt.Errorf("%w: node cannot be both logical (all/any) and comparison (field/operator/value)", ErrInvalidDefinition)
	}
	if hasAll && hasAny {
		return false, fmt.Errorf("%w: node cannot contain both 'all' and 'any'", ErrInvalidDefinition)
	}

	switch {
	case hasAll:
		children, err := logicalChildren(n, keyAll)
		if err != nil {
			return false, err
		}
		// all([]) is true
		for _, child := range children {
			ok, err := EvaluateCondition(child, context)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case hasAny:
		children, err := logicalChildren(n, keyAny)
		if err != nil {
			return false, err
		}
		// any([]) is false
		for _, child := range children {
			ok, err := EvaluateCondition(child, context)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	return evaluateLeaf(n, context)
}

func evaluateLeaf(n map[string]any, context map[string]any) (bool, error) {
	if err := checkLeafKeys(n); err != nil {
		return false, err
	}

	pred, ok := lookupOperator(n[keyOperator])
	if !ok {
		return false, fmt.Errorf("%w: unsupported operator %v, allowed operators: %v",
			ErrInvalidDefinition, n[keyOperator], Operators())
	}

	field, ok := n[keyField].(string)
	if !ok {
		return false, fmt.Errorf("%w: field must be a string, got %T", ErrInvalidDefinition, n[keyField])
	}

	actual, ok := context[field]
	if !ok {
		return false, fmt.Errorf("%w: field %q not found in context, available fields: %v",
			ErrMissingContextField, field, sortedKeys(context))
	}

	expected := n[keyValue]
	result, err := pred(actual, expected)
	if errors.Is(err, ErrEvaluationLimit) {
		return false, fmt.Errorf("field %q with operator %v: %w", field, n[keyOperator], err)
	}
	if err != nil {
		return false, fmt.Errorf("%w: cannot compare %T (actual) with %T (expected) using operator %v: %w",
			ErrEvaluationType, actual, expected, n[keyOperator], err)
	}
	return result, nil
}

// asNode accepts the mapping shapes produced by JSON/YAML decoding and by Go callers
func asNode(node any) (map[string]any, error) {
	switch n := node.(type) {
	case map[string]any:
		return n, nil
	case nil:
		return nil, fmt.Errorf("%w: condition node is null", ErrInvalidDefinition)
	default:
		return nil, fmt.Errorf("%w: condition node must be a mapping, got %T", ErrInvalidDefinition, node)
	}
}

func logicalChildren(n map[string]any, key string) ([]any, error) {
	if len(n) != 1 {
		return nil, fmt.Errorf("%w: logical %q node must contain only the %q key, found %v",
			ErrInvalidDefinition, key, key, sortedKeys(n))
	}

	switch children := n[key].(type) {
	case []any:
		return children, nil
	case []map[string]any:
		out := make([]any, len(children))
		for i, c := range children {
			out[i] = c
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q node must contain a list of conditions, got %T",
			ErrInvalidDefinition, key, n[key])
	}
}

func hasLeafKey(n map[string]any) bool {
	for _, k := range leafKeys {
		if _, ok := n[k]; ok {
			return true
		}
	}
	return false
}

// checkLeafKeys requires the key set to be exactly {field, operator, value}
func checkLeafKeys(n map[string]any) error {
	var missing, unexpected []string
	for _, k := range leafKeys {
		if _, ok := n[k]; !ok {
			missing = append(missing, k)
		}
	}
	for _, k := range sortedKeys(n) {
		if k != keyField && k != keyOperator && k != keyValue {
			unexpected = append(unexpected, k)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}

	var issues []string
	if len(missing) > 0 {
		issues = append(issues, "missing keys: "+strings.Join(missing, ", "))
	}
	if len(unexpected) > 0 {
		issues = append(issues, "unexpected keys: "+strings.Join(unexpected, ", "))
	}
	return fmt.Errorf("%w: leaf node must contain exactly {field, operator, value}, found %v (%s)",
		ErrInvalidDefinition, sortedKeys(n), strings.Join(issues, "; "))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
