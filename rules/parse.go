package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ruleDocument is the wire shape of a rule definition
type ruleDocument struct {
	ID         string    `mapstructure:"rule_id"`
	CaseType   string    `mapstructure:"case_type"`
	Priority   int       `mapstructure:"priority"`
	Enabled    *bool     `mapstructure:"enabled"`
	Condition  any       `mapstructure:"condition"`
	OutputFact any       `mapstructure:"output_fact"`
	CreatedAt  time.Time `mapstructure:"created_at"`
	UpdatedAt  time.Time `mapstructure:"updated_at"`
}

// ParseRules converts a decoded rule collection into rules.
//
// raw must be a sequence of mappings; anything else is an ErrInvalidDefinition.
// A mapping whose metadata cannot be decoded still yields a rule, which the
// engine traces as FAILED_INVALID_DEFINITION. The condition and output fact
// are carried as-is and judged per rule by the engine.
func ParseRules(raw any) ([]Rule, error) {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []map[string]any:
		items = make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
	default:
		return nil, fmt.Errorf("%w: rules must be provided as a list of rule definitions, got %T", ErrInvalidDefinition, raw)
	}

	rules := make([]Rule, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: rule at index %d must be a mapping, got %T", ErrInvalidDefinition, i, item)
		}
		rule, err := parseRule(m)
		if err != nil {
			rule = invalidRule(m, fmt.Errorf("rule at index %d: %w", i, err))
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ParseRulesJSON decodes a JSON array of rule definitions
func ParseRulesJSON(data []byte) ([]Rule, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return ParseRules(raw)
}

// ParseRulesYAML decodes a YAML sequence of rule definitions
func ParseRulesYAML(data []byte) ([]Rule, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return ParseRules(raw)
}

func parseRule(m map[string]any) (Rule, error) {
	var doc ruleDocument
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &doc,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			integralNumberHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return Rule{}, fmt.Errorf("failed to create rule decoder: %w", err)
	}
	if err := decoder.Decode(m); err != nil {
		return Rule{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	_, hasCondition := m[keyCondition]
	rule := Rule{
		ID:            doc.ID,
		CaseType:      doc.CaseType,
		Priority:      doc.Priority,
		Enabled:       true,
		Condition:     doc.Condition,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		conditionNull: hasCondition && doc.Condition == nil,
	}
	if rule.ID == "" {
		rule.ID = UnknownRuleID
	}
	if doc.Enabled != nil {
		rule.Enabled = *doc.Enabled
	}
	// A non-mapping output fact is left nil and rejected by the engine
	if of, ok := doc.OutputFact.(map[string]any); ok {
		rule.OutputFact = of
	}
	return rule, nil
}

// invalidRule keeps a rule whose metadata failed to decode in the batch.
// It carries whatever id and priority are still readable.
func invalidRule(m map[string]any, err error) Rule {
	rule := Rule{
		ID:      UnknownRuleID,
		Enabled: true,
		defErr:  err,
	}
	if id, ok := m["rule_id"].(string); ok && id != "" {
		rule.ID = id
	}
	if ct, ok := m["case_type"].(string); ok {
		rule.CaseType = ct
	}
	switch p := m["priority"].(type) {
	case int:
		rule.Priority = p
	case int64:
		rule.Priority = int(p)
	case float64:
		if p == math.Trunc(p) && math.Abs(p) <= math.MaxInt32 {
			rule.Priority = int(p)
		}
	}
	return rule
}

// integralNumberHook rejects fractional numbers decoded into integer fields.
// JSON numbers arrive as float64 and would otherwise be truncated.
func integralNumberHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int {
		return data, nil
	}
	if f, ok := data.(float64); ok && f != math.Trunc(f) {
		return nil, fmt.Errorf("expected an integer, got %v", f)
	}
	return data, nil
}

// MarshalJSON encodes the rule, writing a present null condition explicitly
// so that it survives a round trip
func (r Rule) MarshalJSON() ([]byte, error) {
	type plain Rule
	data, err := json.Marshal(plain(r))
	if err != nil || !r.conditionNull {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields[keyCondition] = json.RawMessage("null")
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a rule definition, applying the same defaults as ParseRules
func (r *Rule) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	rule, err := parseRule(m)
	if err != nil {
		return err
	}
	*r = rule
	return nil
}

// UnmarshalYAML decodes a rule definition, applying the same defaults as ParseRules
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]any
	if err := value.Decode(&m); err != nil {
		return err
	}
	rule, err := parseRule(m)
	if err != nil {
		return err
	}
	*r = rule
	return nil
}
