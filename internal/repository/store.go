package repository

/*
Пакет repository объявляет общий контракт хранилища платформы.

Каждый потребитель (Directory, Registry, Audit Trail, координатор
подтверждений, Console API) объявляет у себя узкий интерфейс — ровно те
методы, что ему нужны. Store — это их объединение: одна точка, которую
обязаны покрывать реализации postgres и memory.
*/

import (
	"context"
	"time"

	"github.com/xela07ax/aegis-guard/internal/audit"
	"github.com/xela07ax/aegis-guard/internal/domain"
)

// Store — полный контракт хранилища платформы.
type Store interface {
	// Секвенсор: именованные монотонные последовательности
	NextID(ctx context.Context, sequence string) (int64, error)

	// Реестр агентов (Directory / Kill-switch)
	UpsertAgent(ctx context.Context, name, owner string) error
	GetAgent(ctx context.Context, name string) (*domain.Agent, error)
	UpdateAgentStatus(ctx context.Context, name string, status domain.AgentStatus) error
	ListAgents(ctx context.Context) ([]*domain.Agent, error)

	// Реестр политик ALLOW/BLOCK
	UpsertRule(ctx context.Context, rule domain.PolicyRule) error
	GetRule(ctx context.Context, agent, action string) (domain.RuleType, error)
	ListRules(ctx context.Context, agent string) ([]domain.PolicyRule, error)

	// Журнал вердиктов
	WriteAuditBatch(ctx context.Context, entries []audit.Entry) error
	ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, error)

	// Заявки Human-in-the-loop
	CreateApproval(ctx context.Context, req *domain.ApprovalRequest) error
	FindPendingApproval(ctx context.Context, agent, action, fingerprint string) (*domain.ApprovalRequest, error)
	GetApproval(ctx context.Context, id int64) (*domain.ApprovalRequest, error)
	DecideApproval(ctx context.Context, id int64, status domain.ApprovalStatus, decidedAt time.Time) error
	ListApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error)

	// Учетные записи операторов Console API
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// Агрегаты для дашборда
	GlobalStats(ctx context.Context) (*domain.GlobalStats, error)
	AgentStatsList(ctx context.Context) ([]*domain.AgentStats, error)
}
