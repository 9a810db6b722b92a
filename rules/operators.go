package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/interpreter"
)

// operatorCostLimit bounds one comparison; a list membership test costs
// about one unit per element
const operatorCostLimit = 1000000

// Operator is a whitelisted comparison operator
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
)

// predicate compares the context value (actual) with the rule literal (expected)
type predicate func(actual, expected any) (bool, error)

// operatorExpressions is the fixed whitelist. Each entry is compiled once into
// a CEL program over two dynamically typed variables.
var operatorExpressions = map[Operator]string{
	OpEqual:        "actual == expected",
	OpNotEqual:     "actual != expected",
	OpGreater:      "actual > expected",
	OpLess:         "actual < expected",
	OpGreaterEqual: "actual >= expected",
	OpLessEqual:    "actual <= expected",
	// a string right operand means substring containment
	OpIn:    "type(expected) == string ? expected.contains(actual) : actual in expected",
	OpNotIn: "type(expected) == string ? !expected.contains(actual) : !(actual in expected)",
}

var operators = mustCompileOperators()

func mustCompileOperators() map[Operator]predicate {
	ops, err := compileOperators()
	if err != nil {
		panic(err)
	}
	return ops
}

func compileOperators() (map[Operator]predicate, error) {
	env, err := cel.NewEnv(
		cel.Variable("actual", cel.DynType),
		cel.Variable("expected", cel.DynType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ops := make(map[Operator]predicate, len(operatorExpressions))
	for op, expr := range operatorExpressions {
		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile error for operator %q: %w", op, issues.Err())
		}

		prog, err := env.Program(ast, cel.CostLimit(operatorCostLimit))
		if err != nil {
			return nil, fmt.Errorf("program creation error for operator %q: %w", op, err)
		}

		ops[op] = func(actual, expected any) (bool, error) {
			out, _, err := prog.Eval(map[string]any{
				"actual":   actual,
				"expected": expected,
			})
			if err != nil {
				var cancelled interpreter.EvalCancelledError
				if errors.As(err, &cancelled) && cancelled.Cause == interpreter.CostLimitExceeded {
					return false, fmt.Errorf("%w: %w", ErrEvaluationLimit, err)
				}
				return false, err
			}
			b, ok := out.Value().(bool)
			if !ok {
				return false, fmt.Errorf("operator %q produced %T, not bool", op, out.Value())
			}
			return b, nil
		}
	}
	return ops, nil
}

// lookupOperator resolves an operator tag from a condition node
func lookupOperator(raw any) (predicate, bool) {
	name, ok := raw.(string)
	if !ok {
		return nil, false
	}
	p, ok := operators[Operator(name)]
	return p, ok
}

// Operators returns the whitelisted operator tags in sorted order
func Operators() []Operator {
	ops := make([]Operator, 0, len(operatorExpressions))
	for op := range operatorExpressions {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// IsOperator reports whether name is a whitelisted operator
func IsOperator(name string) bool {
	_, ok := operatorExpressions[Operator(name)]
	return ok
}
