package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liamcoop/casework/casecontext"
	"github.com/liamcoop/casework/orchestrator"
	"github.com/liamcoop/casework/rules"
	"github.com/liamcoop/casework/storage"
	"github.com/liamcoop/casework/workflow"
)

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrCaseNotFound), errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrIllegalTransition), errors.Is(err, workflow.ErrStaleState),
		errors.Is(err, rules.ErrRuleExists), errors.Is(err, storage.ErrCaseExists):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrGuardViolation), errors.Is(err, casecontext.ErrInvalidCreatedAt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rules.ErrInvalidDefinition), errors.Is(err, storage.ErrInvalidCase):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrReadOnly):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Error:  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// Ad-hoc evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Context == nil {
		req.Context = map[string]any{}
	}

	startTime := time.Now()

	result, err := rules.EvaluateDefinitions(req.Context, req.Rules)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule document", err)
		return
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		Result:         result,
		EvaluationTime: time.Since(startTime).String(),
	})
}

// Create case handler
func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req CreateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.CaseID == "" {
		req.CaseID = uuid.NewString()
	}

	c := &workflow.Case{
		ID:       req.CaseID,
		CaseType: req.CaseType,
		Data:     req.Data,
	}
	if err := s.cases.CreateCase(r.Context(), c); err != nil {
		respondError(w, statusFor(err), "failed to create case", err)
		return
	}

	respondJSON(w, http.StatusCreated, c)
}

// Get case handler
func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.GetCase(r.Context(), chi.URLParam(r, "caseId"))
	if err != nil {
		respondError(w, statusFor(err), "failed to get case", err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}

// Audit trail handler
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseId")

	if _, err := s.cases.GetCase(r.Context(), caseID); err != nil {
		respondError(w, statusFor(err), "failed to get case", err)
		return
	}

	records, err := s.cases.ListAudit(r.Context(), caseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list audit records", err)
		return
	}

	respondJSON(w, http.StatusOK, AuditListResponse{CaseID: caseID, Audit: records})
}

// Dry-run evaluation handler
func (s *Server) handleEvaluateCase(w http.ResponseWriter, r *http.Request) {
	ev, err := s.orch.Evaluate(r.Context(), chi.URLParam(r, "caseId"))
	if err != nil {
		respondError(w, statusFor(err), "evaluation failed", err)
		return
	}

	respondJSON(w, http.StatusOK, ev)
}

// Transition handler
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	target, err := workflow.ParseState(req.TargetState)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid target_state", err)
		return
	}

	res, err := s.orch.Step(r.Context(), orchestrator.StepRequest{
		CaseID:      chi.URLParam(r, "caseId"),
		TargetState: target,
		Reason:      req.Reason,
	})
	if err != nil {
		var result any
		if res.CaseID != "" {
			result = res
		}
		respondErrorWithResult(w, statusFor(err), "transition rejected", err, result)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	caseType := chi.URLParam(r, "caseType")

	list, err := s.rules.RulesForCaseType(r.Context(), caseType)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	respondJSON(w, http.StatusOK, RulesListResponse{CaseType: caseType, Rules: list})
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule definition", err)
		return
	}
	rule.CaseType = chi.URLParam(r, "caseType")

	if err := s.rules.AddRule(r.Context(), &rule); err != nil {
		respondError(w, statusFor(err), "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.GetRule(r.Context(), chi.URLParam(r, "caseType"), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "failed to get rule", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule definition", err)
		return
	}

	// the path names the rule; a body without rule_id takes it from there
	if rule.ID == rules.UnknownRuleID {
		rule.ID = ruleID
	}
	if rule.ID != ruleID {
		respondError(w, http.StatusBadRequest, "rule_id does not match the path", nil)
		return
	}
	rule.CaseType = chi.URLParam(r, "caseType")

	if err := s.rules.UpdateRule(r.Context(), &rule); err != nil {
		respondError(w, statusFor(err), "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	err := s.rules.DeleteRule(r.Context(), chi.URLParam(r, "caseType"), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "failed to delete rule", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
