package postgres

import (
	"context"
	"fmt"

	"github.com/xela07ax/aegis-guard/internal/domain"
)

// GlobalStats — сводка для шапки дашборда за один проход по базе.
func (r *Repo) GlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	s := &domain.GlobalStats{}

	// 1. Счетчики агентов
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'ACTIVE')
		FROM agents`).Scan(&s.RegisteredAgents, &s.ActiveAgents)
	if err != nil {
		return nil, fmt.Errorf("postgres: agent counters: %w", err)
	}

	// 2. Блокировки за последние 24 часа из журнала вердиктов
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM audit_log
		WHERE status IN ('BLOCKED', 'KILLED', 'TIMEOUT')
		  AND ts > NOW() - INTERVAL '24 hours'`).Scan(&s.Blocks24h)
	if err != nil {
		return nil, fmt.Errorf("postgres: block counters: %w", err)
	}

	// 3. Очередь оператора
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM approvals WHERE status = 'PENDING'`).Scan(&s.PendingApprovals)
	if err != nil {
		return nil, fmt.Errorf("postgres: pending counters: %w", err)
	}

	s.RiskLevel = domain.RiskLevelFor(s.Blocks24h)
	return s, nil
}

// AgentStatsList — агенты с производными счетчиками журнала
// для основной таблицы Console API.
func (r *Repo) AgentStatsList(ctx context.Context) ([]*domain.AgentStats, error) {
	query := `
		SELECT
			a.name, a.status, a.owner, a.created_at, a.updated_at,
			COUNT(l.id),
			COUNT(l.id) FILTER (WHERE l.status IN ('ALLOWED', 'APPROVED')),
			COUNT(l.id) FILTER (WHERE l.status IN ('BLOCKED', 'KILLED', 'DENIED', 'TIMEOUT'))
		FROM agents a
		LEFT JOIN audit_log l ON l.agent_name = a.name
		GROUP BY a.name, a.status, a.owner, a.created_at, a.updated_at
		ORDER BY a.name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: agent stats: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.AgentStats, 0)
	for rows.Next() {
		st := &domain.AgentStats{}
		err := rows.Scan(
			&st.Name, &st.Status, &st.Owner, &st.CreatedAt, &st.UpdatedAt,
			&st.TotalActions, &st.AllowedActions, &st.BlockedActions,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan agent stats: %w", err)
		}
		st.DigitalID = domain.DigitalID(st.Name)
		if st.TotalActions > 0 {
			st.RiskScore = float64(st.BlockedActions) / float64(st.TotalActions) * 100
		}
		results = append(results, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
