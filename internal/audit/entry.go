package audit

import (
	"time"

	"github.com/xela07ax/aegis-guard/internal/domain"
)

// Entry — одна неизменяемая запись журнала: финализированный вердикт
// по одной попытке действия. Записи только добавляются, порядок ID
// совпадает с порядком принятия решений.
type Entry struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	AgentName string         `json:"agent_name"`
	Action    string         `json:"action"`
	Verdict   domain.Verdict `json:"status"`
	Details   string         `json:"details"` // Человекочитаемая причина или снапшот аргументов
}

// Severity прокидывает уровень вердикта для сериализации в Console API.
func (e Entry) Severity() string {
	return e.Verdict.Severity()
}

// Filter — параметры выборки журнала.
type Filter struct {
	AgentName string // Пустая строка = все агенты
	Limit     int    // 0 = дефолтный лимит хранилища
}
