package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/aegis-guard/internal/console/service"
	"github.com/xela07ax/aegis-guard/internal/domain"
	"go.uber.org/zap"
)

type AgentHandler struct {
	service *service.AgentService
	logger  *zap.Logger
}

func NewAgentHandler(s *service.AgentService, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{service: s, logger: logger.Named("agent-handler")}
}

type registerAgentRequest struct {
	Name     string           `json:"name"`
	Owner    string           `json:"owner"`
	Policies domain.PolicySet `json:"policies"`
}

// Create регистрирует агента из консоли, опционально — со стартовыми
// политиками в том же запросе.
// POST /v1/agents
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := h.service.Register(r.Context(), req.Name, req.Owner, req.Policies); err != nil {
		h.logger.Error("agent registration failed", zap.String("agent", req.Name), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// List возвращает агентов со счетчиками для основной таблицы.
// GET /v1/agents
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch agents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get возвращает карточку одного агента.
// GET /v1/agents/{name}
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	agent, err := h.service.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// Kill — мгновенная блокировка (Kill-switch).
// POST /v1/agents/{name}/kill
func (h *AgentHandler) Kill(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Kill)
}

// Revive — возврат агента в работу.
// POST /v1/agents/{name}/revive
func (h *AgentHandler) Revive(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Revive)
}

type toggleRequest struct {
	Status domain.AgentStatus `json:"status"`
}

// Toggle переключает статус явным значением, альтернатива kill/revive.
// POST /v1/agents/{name}/toggle
func (h *AgentHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case domain.StatusPaused:
		h.toggle(w, r, h.service.Kill)
	case domain.StatusActive:
		h.toggle(w, r, h.service.Revive)
	default:
		http.Error(w, "status must be ACTIVE or PAUSED", http.StatusBadRequest)
	}
}

func (h *AgentHandler) toggle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, name string) error) {
	name := chi.URLParam(r, "name")
	if name == "" {
		http.Error(w, "agent name is required", http.StatusBadRequest)
		return
	}

	// Ждем завершения и БД, и сигнала, чтобы гарантировать безопасность
	if err := op(r.Context(), name); err != nil {
		if errors.Is(err, domain.ErrAgentNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		h.logger.Error("agent toggle failed", zap.String("agent", name), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
