package postgres

/*
Файл policy_repo.go отвечает за хранение правил безопасности.
Правило уникально по паре (агент, действие): upsert с перезаписью типа.
*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/aegis-guard/internal/domain"
)

func (r *Repo) UpsertRule(ctx context.Context, rule domain.PolicyRule) error {
	query := `
		INSERT INTO policies (agent_name, action, rule_type, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (agent_name, action)
		DO UPDATE SET rule_type = EXCLUDED.rule_type, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, rule.AgentName, rule.Action, rule.Type); err != nil {
		return fmt.Errorf("postgres: upsert rule: %w", err)
	}
	return nil
}

// GetRule возвращает UNKNOWN без ошибки, если правила нет:
// отсутствие записи — штатное третье состояние, триггер Review.
func (r *Repo) GetRule(ctx context.Context, agent, action string) (domain.RuleType, error) {
	query := `SELECT rule_type FROM policies WHERE agent_name = $1 AND action = $2`

	var t domain.RuleType
	err := r.pool.QueryRow(ctx, query, agent, action).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RuleUnknown, nil
		}
		return "", fmt.Errorf("postgres: get rule (%s, %s): %w", agent, action, err)
	}
	return t, nil
}

func (r *Repo) ListRules(ctx context.Context, agent string) ([]domain.PolicyRule, error) {
	query := `
		SELECT agent_name, action, rule_type, updated_at
		FROM policies WHERE agent_name = $1 ORDER BY action`

	rows, err := r.pool.Query(ctx, query, agent)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rules for %q: %w", agent, err)
	}
	defer rows.Close()

	rules := make([]domain.PolicyRule, 0)
	for rows.Next() {
		var p domain.PolicyRule
		if err := rows.Scan(&p.AgentName, &p.Action, &p.Type, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan rule: %w", err)
		}
		rules = append(rules, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return rules, nil
}
