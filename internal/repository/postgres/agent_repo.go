package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/aegis-guard/internal/domain"
)

// UpsertAgent идемпотентная регистрация: повторный вызов обновляет владельца,
// но НЕ трогает статус — kill-switch не сбрасывается рестартом агента.
func (r *Repo) UpsertAgent(ctx context.Context, name, owner string) error {
	query := `
		INSERT INTO agents (name, status, owner, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET owner = EXCLUDED.owner, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, name, domain.StatusActive, owner); err != nil {
		return fmt.Errorf("postgres: upsert agent %q: %w", name, err)
	}
	return nil
}

func (r *Repo) GetAgent(ctx context.Context, name string) (*domain.Agent, error) {
	query := `SELECT name, status, owner, created_at, updated_at FROM agents WHERE name = $1`

	a := &domain.Agent{}
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&a.Name, &a.Status, &a.Owner, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, fmt.Errorf("postgres: get agent %q: %w", name, err)
	}
	return a, nil
}

// UpdateAgentStatus меняет статус (kill-switch / revive)
func (r *Repo) UpdateAgentStatus(ctx context.Context, name string, status domain.AgentStatus) error {
	query := `UPDATE agents SET status = $1, updated_at = NOW() WHERE name = $2`

	ct, err := r.pool.Exec(ctx, query, status, name)
	if err != nil {
		return fmt.Errorf("postgres: update agent status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

func (r *Repo) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	query := `SELECT name, status, owner, created_at, updated_at FROM agents ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list agents: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	agents := make([]*domain.Agent, 0)
	for rows.Next() {
		a := &domain.Agent{}
		if err := rows.Scan(&a.Name, &a.Status, &a.Owner, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return agents, nil
}
