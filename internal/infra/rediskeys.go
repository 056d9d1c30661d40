package infra

import "fmt"

const (
	// RedisNamespace — базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "aegis"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanApprovalDecisions — префикс каналов трансляции решений
	// оператора (HITL). Полный канал уникален для конкретной заявки.
	RedisChanApprovalDecisions = RedisNamespace + ":approvals:decision"

	// RedisChanKillSwitch — широковещательный сигнал смены статуса агента.
	// Источник правды — Postgres; сигнал нужен слушателям (дашборды,
	// внешние шлюзы), которым важно узнать о переключении без поллинга.
	RedisChanKillSwitch = RedisNamespace + ":agents:kill-switch-signal"

	// RedisChanPolicyUpdate — уведомление об изменении набора политик.
	RedisChanPolicyUpdate = RedisNamespace + ":policies:update"
)

// ApprovalDecisionChannel строит имя канала для конкретной заявки.
func ApprovalDecisionChannel(id int64) string {
	return fmt.Sprintf("%s:%d", RedisChanApprovalDecisions, id)
}

// KillSwitchPayload формирует сообщение сигнала "agent:status".
func KillSwitchPayload(agent, status string) string {
	return fmt.Sprintf("%s:%s", agent, status)
}
