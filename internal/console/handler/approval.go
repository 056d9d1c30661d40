package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/aegis-guard/internal/approval"
	"github.com/xela07ax/aegis-guard/internal/domain"
	"github.com/xela07ax/aegis-guard/internal/infra/auth"
	"go.uber.org/zap"
)

type ApprovalHandler struct {
	coord  *approval.Coordinator
	logger *zap.Logger
}

func NewApprovalHandler(c *approval.Coordinator, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{coord: c, logger: logger.Named("approval-handler")}
}

// List — очередь запросов на проверку.
// GET /v1/approvals?status=PENDING
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "PENDING" // Дефолт для удобства админки
	}

	list, err := h.coord.List(r.Context(), domain.ApprovalStatus(strings.ToUpper(status)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetDetails — детали заявки для анализа перед решением.
// GET /v1/approvals/{id}
func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	id, err := approvalID(r)
	if err != nil {
		http.Error(w, "invalid approval id", http.StatusBadRequest)
		return
	}

	req, err := h.coord.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrApprovalNotFound) {
			http.Error(w, "approval not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type decideRequest struct {
	Decision string `json:"decision"` // APPROVED | DENIED
	Comment  string `json:"comment"`
}

// Decide фиксирует решение оператора и будит ждущую горутину шлюза.
// POST /v1/approvals/{id}/decide
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := approvalID(r)
	if err != nil {
		http.Error(w, "invalid approval id", http.StatusBadRequest)
		return
	}

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Решение принимается только явным значением: молчаливый дефолт
	// здесь превратил бы опечатку клиента в отказ агенту.
	status := domain.ApprovalStatus(strings.ToUpper(req.Decision))
	if status != domain.ApprovalApproved && status != domain.ApprovalDenied {
		http.Error(w, "decision must be APPROVED or DENIED", http.StatusBadRequest)
		return
	}

	// ReviewerID из токена — подотчетность решений (Accountability)
	reviewer := auth.UserID(r.Context())

	if err := h.coord.Decide(r.Context(), id, status); err != nil {
		switch {
		case errors.Is(err, domain.ErrApprovalNotFound):
			http.Error(w, "approval not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrAlreadyProcessed):
			// Решение уже принято ранее — Double Decision недопустим
			http.Error(w, "approval already processed", http.StatusConflict)
		default:
			h.logger.Error("decide failed", zap.Int64("id", id), zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("HITL decision processed",
		zap.Int64("id", id),
		zap.String("reviewer", reviewer),
		zap.String("result", string(status)),
		zap.String("comment", req.Comment))
	w.WriteHeader(http.StatusNoContent)
}

func approvalID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
