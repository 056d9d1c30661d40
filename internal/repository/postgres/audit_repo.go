package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/aegis-guard/internal/audit"
)

// WriteAuditBatch пакетная вставка записей журнала одним запросом.
func (r *Repo) WriteAuditBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_log
	numFields := 6
	placeholderStr := ""
	vals := make([]interface{}, 0, len(entries)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range entries {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6)
		vals = append(vals, e.ID, e.Timestamp, e.AgentName, e.Action, e.Verdict, e.Details)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO audit_log (id, ts, agent_name, action, status, details) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write audit batch (%d entries): %w", len(entries), err)
	}
	return nil
}

// ListAudit возвращает записи журнала, новые сверху.
func (r *Repo) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	query := `SELECT id, ts, agent_name, action, status, details FROM audit_log`

	var args []interface{}
	if f.AgentName != "" {
		query += " WHERE agent_name = $1"
		args = append(args, f.AgentName)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.AgentName, &e.Action, &e.Verdict, &e.Details); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return entries, nil
}
