package guard

import (
	"errors"
	"fmt"
)

// ErrNoActiveAgent: обернутое действие вызвано вне контекста агента
// и без статической привязки. Отсутствие identity — это отказ, не ALLOW.
var ErrNoActiveAgent = errors.New("guard: no active agent bound to context")

// BlockReason уточняет, какой именно контур запретил действие.
type BlockReason string

const (
	ReasonPolicy  BlockReason = "policy"  // Явное правило BLOCK
	ReasonDenied  BlockReason = "denied"  // Оператор отклонил запрос
	ReasonTimeout BlockReason = "timeout" // Оператор не успел, отказ по умолчанию
)

// BlockedError возвращается вместо результата, когда действие запрещено
// политикой или оператором. Агент получает ее как обычную ошибку вызова.
type BlockedError struct {
	Agent  string
	Action string
	Reason BlockReason
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("guard: action %q blocked for agent %q (%s)", e.Action, e.Agent, e.Reason)
}

// KillSwitchError — агент на паузе: запрещены ВСЕ его действия,
// независимо от политик.
type KillSwitchError struct {
	Agent  string
	Action string
}

func (e *KillSwitchError) Error() string {
	return fmt.Sprintf("guard: agent %q is paused by kill-switch, action %q rejected", e.Agent, e.Action)
}

// ApprovalPendingError — неблокирующий режим: запрос оператору создан,
// действие не исполнено. RequestID позволяет агенту опросить статус позже.
type ApprovalPendingError struct {
	Agent     string
	Action    string
	RequestID int64
}

func (e *ApprovalPendingError) Error() string {
	return fmt.Sprintf("guard: action %q for agent %q requires approval (request %d pending)",
		e.Action, e.Agent, e.RequestID)
}
