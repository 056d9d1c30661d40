package domain

import (
	"errors"
	"time"
)

// Статусы State Machine запроса на подтверждение
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalDenied   ApprovalStatus = "DENIED"
	ApprovalTimeout  ApprovalStatus = "TIMEOUT"
)

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
	ErrApprovalNotFound  = errors.New("approval request not found")
)

// ApprovalRequest — запись Human-in-the-loop: действие агента приостановлено
// до решения оператора. Создается один раз, переходит PENDING -> терминальный
// статус ровно один раз и после этого неизменяема.
type ApprovalRequest struct {
	ID      int64  `json:"id"`       // Монотонный ID из общего секвенсора
	TraceID string `json:"trace_id"` // UUID для сквозной трассировки

	AgentName string `json:"agent_name"`
	Action    string `json:"action"`
	ArgsJSON  string `json:"args_json"` // Снапшот аргументов на момент попытки

	// Fingerprint схлопывает повторные попытки зацикленного агента
	// в один запрос оператору: sha256(agent|action|args).
	Fingerprint string `json:"-"`

	Status    ApprovalStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	DecidedAt *time.Time     `json:"decided_at,omitempty"`
}

// Terminal сообщает, принято ли уже решение по запросу.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalDenied || s == ApprovalTimeout
}

// CanTransitionTo проверяет правила конечного автомата
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != ApprovalPending {
		return ErrAlreadyProcessed
	}
	if next == ApprovalPending {
		return ErrInvalidTransition
	}
	return nil
}
