package domain

import "time"

// RuleType определяет, что делать с действием агента
type RuleType string

const (
	RuleAllow RuleType = "ALLOW" // Разрешить без участия человека
	RuleBlock RuleType = "BLOCK" // Жесткий запрет, минуя Review

	// RuleUnknown — отсутствие записи в реестре. Это полноценное третье
	// состояние, а не ошибка: неизвестное действие уходит на Human-in-the-loop.
	RuleUnknown RuleType = "UNKNOWN"
)

// PolicyRule — одно правило безопасности для пары (агент, действие).
// Ключ уникален: повторная регистрация перезаписывает прежний тип правила.
type PolicyRule struct {
	AgentName string   `json:"agent_name"`
	Action    string   `json:"action"`
	Type      RuleType `json:"rule_type"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Declared сообщает, можно ли записывать правило в реестр.
// UNKNOWN существует только как результат поиска, хранить его нельзя.
func (r RuleType) Declared() bool {
	return r == RuleAllow || r == RuleBlock
}

// PolicySet — агрегированное представление правил агента для Console API.
type PolicySet struct {
	Allowed []string `json:"allowed"`
	Blocked []string `json:"blocked"`
}
