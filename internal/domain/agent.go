package domain

import (
	"errors"
	"time"
)

type AgentStatus string

const (
	StatusActive AgentStatus = "ACTIVE" // Полный доступ, действия проверяются по политикам
	StatusPaused AgentStatus = "PAUSED" // Kill-switch: все действия агента запрещены
)

// ErrAgentNotFound означает, что агент не зарегистрирован в Directory.
// Это НЕ то же самое, что PAUSED: незарегистрированный агент не убит,
// его действия уходят в Review как неизвестные.
var ErrAgentNotFound = errors.New("agent not found")

// Valid проверяет, что статус входит в допустимый набор состояний.
func (s AgentStatus) Valid() bool {
	return s == StatusActive || s == StatusPaused
}

type Agent struct {
	Name      string      `json:"name"`   // Уникальный идентификатор (ключ)
	Status    AgentStatus `json:"status"` // Текущее состояние kill-switch
	Owner     string      `json:"owner"`  // Команда или человек, отвечающий за агента
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
