package main

import (
	"github.com/liamcoop/casework/rules"
	"github.com/liamcoop/casework/workflow"
)

// API request and response models

// CreateCaseRequest is the body of POST /api/v1/cases. A missing case_id is generated.
type CreateCaseRequest struct {
	CaseID   string         `json:"case_id,omitempty"`
	CaseType string         `json:"case_type"`
	Data     map[string]any `json:"data"`
}

// TransitionRequest is the body of POST /api/v1/cases/{caseId}/transitions
type TransitionRequest struct {
	TargetState string `json:"target_state"`
	Reason      string `json:"reason"`
}

// AuditListResponse lists the audit trail of a case
type AuditListResponse struct {
	CaseID string                 `json:"case_id"`
	Audit  []workflow.AuditRecord `json:"audit"`
}

// RulesListResponse lists the rules of a case type in creation order
type RulesListResponse struct {
	CaseType string       `json:"case_type"`
	Rules    []rules.Rule `json:"rules"`
}

// EvaluateRequest is the body of POST /api/v1/evaluate: an ad-hoc context
// and a raw rule document
type EvaluateRequest struct {
	Context map[string]any `json:"context"`
	Rules   any            `json:"rules"`
}

// EvaluateResponse carries the facts and trace of an ad-hoc evaluation
type EvaluateResponse struct {
	rules.Result
	EvaluationTime string `json:"evaluation_time"`
}

// ErrorResponse is the body of every non-2xx response. Result is set when a
// rejected transition still produced facts and a trace.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// HealthResponse reports database reachability
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
