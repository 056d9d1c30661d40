package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GlobalStats — сводка для шапки дашборда.
type GlobalStats struct {
	RegisteredAgents int    `json:"registered_agents"`
	ActiveAgents     int    `json:"active_agents"`
	Blocks24h        int    `json:"total_blocks_24h"` // BLOCKED + KILLED + TIMEOUT за сутки
	PendingApprovals int    `json:"pending_approvals"`
	RiskLevel        string `json:"risk_level"`
}

// RiskLevelFor выводит уровень риска из количества блокировок за окно.
// Пороговые значения совпадают с тем, что ожидает фронт.
func RiskLevelFor(blocks int) string {
	switch {
	case blocks == 0:
		return "LOW"
	case blocks <= 5:
		return "MEDIUM"
	case blocks <= 20:
		return "HIGH"
	default:
		return "CRITICAL"
	}
}

// DigitalID — стабильный публичный идентификатор агента для витрины:
// "AGT-" + первые 6 hex-байт sha256(name). Имя агента может содержать
// внутренние детали, наружу уходит только digest.
func DigitalID(name string) string {
	h := sha256.Sum256([]byte(name))
	return "AGT-" + strings.ToUpper(hex.EncodeToString(h[:3]))
}

// AgentStats — агент + производные счетчики из журнала аудита
// для основной таблицы Console API.
type AgentStats struct {
	Agent

	DigitalID      string  `json:"id"` // "AGT-" + первые байты sha256(name)
	TotalActions   int64   `json:"total_logs"`
	AllowedActions int64   `json:"allowed_count"`
	BlockedActions int64   `json:"blocked_count"`
	RiskScore      float64 `json:"risk_score"` // blocked / total * 100
}
