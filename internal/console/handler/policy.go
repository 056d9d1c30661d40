package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/aegis-guard/internal/console/service"
	"github.com/xela07ax/aegis-guard/internal/domain"
)

type PolicyHandler struct {
	service *service.PolicyService
}

func NewPolicyHandler(s *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{service: s}
}

type upsertRuleRequest struct {
	AgentName string `json:"agent_name"`
	Action    string `json:"action"`
	RuleType  string `json:"rule_type"` // ALLOW | BLOCK
}

// Upsert создает или перезаписывает правило.
// POST /v1/policies
func (h *PolicyHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t := domain.RuleType(strings.ToUpper(req.RuleType))
	if !t.Declared() {
		http.Error(w, "rule_type must be ALLOW or BLOCK", http.StatusBadRequest)
		return
	}

	if err := h.service.Upsert(r.Context(), req.AgentName, req.Action, t); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AgentRules возвращает объявленные правила агента.
// GET /v1/agents/{name}/policies
func (h *PolicyHandler) AgentRules(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	set, err := h.service.Rules(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, set)
}
