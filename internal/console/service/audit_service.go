package service

import (
	"context"

	"github.com/xela07ax/aegis-guard/internal/audit"
)

// AuditService — доступ консоли к журналу вердиктов (только чтение:
// записи в журнал идут исключительно через контур принятия решений).
type AuditService struct {
	trail *audit.Trail
}

func NewAuditService(trail *audit.Trail) *AuditService {
	return &AuditService{trail: trail}
}

// LogView — запись журнала, обогащенная уровнем для раскраски фронта.
type LogView struct {
	audit.Entry
	Severity string `json:"severity"`
}

func (s *AuditService) FetchLogs(ctx context.Context, agent string, limit int) ([]LogView, error) {
	entries, err := s.trail.List(ctx, audit.Filter{AgentName: agent, Limit: limit})
	if err != nil {
		return nil, err
	}

	views := make([]LogView, 0, len(entries))
	for _, e := range entries {
		views = append(views, LogView{Entry: e, Severity: e.Severity()})
	}
	return views, nil
}
