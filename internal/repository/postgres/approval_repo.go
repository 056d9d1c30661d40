package postgres

/*
Файл approval_repo.go содержит реализацию методов для механизма
Human-in-the-loop (HITL, «человек в контуре»).
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/aegis-guard/internal/domain"
)

const approvalColumns = `id, trace_id, agent_name, action, args_json, fingerprint, status, created_at, decided_at`

// CreateApproval создает запись в таблице approvals.
// Частичный уникальный индекс по (agent_name, action, fingerprint) для
// PENDING-строк гарантирует дедупликацию на уровне БД даже при гонке.
func (r *Repo) CreateApproval(ctx context.Context, req *domain.ApprovalRequest) error {
	query := `
		INSERT INTO approvals (id, trace_id, agent_name, action, args_json, fingerprint, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		req.ID, req.TraceID, req.AgentName, req.Action,
		req.ArgsJSON, req.Fingerprint, req.Status, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create approval request: %w", err)
	}
	return nil
}

// FindPendingApproval ищет открытую заявку по отпечатку.
// nil без ошибки — открытой заявки нет.
func (r *Repo) FindPendingApproval(ctx context.Context, agent, action, fingerprint string) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + `
		FROM approvals
		WHERE agent_name = $1 AND action = $2 AND fingerprint = $3 AND status = 'PENDING'
		LIMIT 1`

	req, err := r.scanApproval(r.pool.QueryRow(ctx, query, agent, action, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: find pending approval: %w", err)
	}
	return req, nil
}

// GetApproval получение деталей заявки.
func (r *Repo) GetApproval(ctx context.Context, id int64) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`

	req, err := r.scanApproval(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("postgres: get approval %d: %w", id, err)
	}
	return req, nil
}

// DecideApproval атомарно переводит заявку из PENDING в терминальный статус.
// Условие WHERE status = 'PENDING' исключает Double Decision: проигравший
// конкурент получает domain.ErrAlreadyProcessed, а не перезапись решения.
func (r *Repo) DecideApproval(ctx context.Context, id int64, status domain.ApprovalStatus, decidedAt time.Time) error {
	query := `
		UPDATE approvals
		SET status = $1, decided_at = $2
		WHERE id = $3 AND status = 'PENDING'`

	ct, err := r.pool.Exec(ctx, query, status, decidedAt, id)
	if err != nil {
		return fmt.Errorf("postgres: decide approval %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		// Либо ID неверный, либо (что чаще) решение уже было принято
		if _, gerr := r.GetApproval(ctx, id); gerr != nil {
			return gerr
		}
		return domain.ErrAlreadyProcessed
	}
	return nil
}

// ListApprovals фильтрация и выборка списка заявок (Decision Queue).
func (r *Repo) ListApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`

	var args []interface{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query approvals: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ApprovalRequest, 0)
	for rows.Next() {
		req, err := r.scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan approval: %w", err)
		}
		results = append(results, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func (r *Repo) scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	req := &domain.ApprovalRequest{}
	err := row.Scan(
		&req.ID, &req.TraceID, &req.AgentName, &req.Action,
		&req.ArgsJSON, &req.Fingerprint, &req.Status,
		&req.CreatedAt, &req.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}
