package rules

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// conditionFunc evaluates a single condition tree
type conditionFunc func(node any, evalCtx map[string]any) (bool, error)

// EvaluateRules evaluates rules against evalCtx and returns the derived facts
// together with a trace holding one entry per rule.
//
// Rules are evaluated in ascending priority, ties keeping their input order.
// A rule whose condition holds writes its output fact, overwriting any fact of
// the same name written earlier, so the highest priority wins. A malformed or
// failing rule never aborts the batch: it contributes no fact and its trace
// entry carries the failure. Neither evalCtx nor rules is modified.
func EvaluateRules(evalCtx map[string]any, rules []Rule) Result {
	return evaluateRules(evalCtx, rules, EvaluateCondition)
}

// EvaluateDefinitions decodes a raw rule collection (as produced by JSON or
// YAML decoding) and evaluates it. It fails only when raw is not a sequence
// of rule definitions.
func EvaluateDefinitions(evalCtx map[string]any, raw any) (Result, error) {
	rules, err := ParseRules(raw)
	if err != nil {
		return Result{}, err
	}
	return EvaluateRules(evalCtx, rules), nil
}

func evaluateRules(evalCtx map[string]any, rules []Rule, eval conditionFunc) Result {
	sorted := slices.Clone(rules)
	slices.SortStableFunc(sorted, func(a, b Rule) int {
		return cmp.Compare(a.Priority, b.Priority)
	})

	facts := make(map[string]any)
	trace := make([]TraceEntry, 0, len(sorted))
	for _, rule := range sorted {
		entry := evaluateRule(evalCtx, rule, eval)
		if entry.ProducedFact != nil {
			maps.Copy(facts, entry.ProducedFact)
		}
		trace = append(trace, entry)
	}

	return Result{Facts: facts, Trace: trace}
}

func evaluateRule(evalCtx map[string]any, rule Rule, eval conditionFunc) (entry TraceEntry) {
	entry = TraceEntry{
		RuleID:   rule.ID,
		Priority: rule.Priority,
	}
	if entry.RuleID == "" {
		entry.RuleID = UnknownRuleID
	}

	if rule.defErr != nil {
		entry.Status = StatusFailedInvalidDefinition
		entry.Error = &TraceError{
			Kind:    KindInvalidDefinition,
			Message: rule.defErr.Error(),
		}
		return entry
	}

	if !rule.hasCondition() {
		entry.Status = StatusFailedInvalidDefinition
		entry.Error = &TraceError{
			Kind:    KindInvalidDefinition,
			Message: "rule missing required 'condition' key",
		}
		return entry
	}

	if !rule.Enabled {
		entry.Status = StatusSkippedDisabled
		return entry
	}

	// A malformed output fact condemns the rule before its condition runs
	if len(rule.OutputFact) != 1 {
		entry.Status = StatusFailedInvalidDefinition
		entry.Error = &TraceError{
			Kind:    KindInvalidDefinition,
			Message: fmt.Sprintf("rule %q must define output_fact as a mapping with exactly one key", entry.RuleID),
		}
		return entry
	}

	defer func() {
		if p := recover(); p != nil {
			entry.Evaluated = true
			entry.Status = StatusFailedEngineError
			entry.ConditionResult = nil
			entry.ProducedFact = nil
			entry.Error = &TraceError{
				Kind:    KindEngineError,
				Message: fmt.Sprintf("unexpected engine error: %v", p),
			}
		}
	}()

	result, err := eval(rule.Condition, evalCtx)
	entry.Evaluated = true
	if err != nil {
		status, kind := classify(err)
		entry.Status = status
		entry.Error = &TraceError{Kind: kind, Message: err.Error()}
		if kind == KindEngineError {
			entry.Error.Message = "unexpected engine error: " + err.Error()
		}
		return entry
	}

	entry.ConditionResult = &result
	if !result {
		entry.Status = StatusEvaluatedFalse
		return entry
	}

	entry.Status = StatusEvaluatedTrue
	entry.ProducedFact = maps.Clone(rule.OutputFact)
	return entry
}
