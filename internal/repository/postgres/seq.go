package postgres

import (
	"context"
	"fmt"
)

// NextID выделяет следующий номер именованной последовательности.
// Таблица counters вместо нативных sequence: одна строка на последовательность,
// UPDATE .. RETURNING атомарен, а upsert создает счетчик при первом обращении.
func (r *Repo) NextID(ctx context.Context, sequence string) (int64, error) {
	query := `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value`

	var id int64
	if err := r.pool.QueryRow(ctx, query, sequence).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: next id for %q: %w", sequence, err)
	}
	return id, nil
}
