package approval

/*
Пакет approval — координатор Human-in-the-loop.

Жизненный цикл заявки: CreateOrFind (дедупликация по отпечатку аргументов)
-> PENDING -> ровно один переход в APPROVED / DENIED / TIMEOUT.

Блокирующее ожидание построено не на голом sleep-цикле: ждущая горутина
слушает Pub/Sub сигнал решения и параллельно поллит хранилище с ограниченным
интервалом (страховка от потерянного сигнала). Ожидание отменяемо через
контекст и жестко ограничено дедлайном.
*/

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/aegis-guard/internal/audit"
	"github.com/xela07ax/aegis-guard/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SequencePending — имя последовательности заявок в общем секвенсоре.
const SequencePending = "pending_approvals"

// Store описывает требования координатора к хранилищу.
type Store interface {
	NextID(ctx context.Context, sequence string) (int64, error)
	CreateApproval(ctx context.Context, req *domain.ApprovalRequest) error
	// FindPendingApproval возвращает nil без ошибки, если открытой заявки нет.
	FindPendingApproval(ctx context.Context, agent, action, fingerprint string) (*domain.ApprovalRequest, error)
	GetApproval(ctx context.Context, id int64) (*domain.ApprovalRequest, error)
	// DecideApproval атомарно переводит PENDING в терминальный статус.
	// Возвращает domain.ErrAlreadyProcessed, если решение уже принято.
	DecideApproval(ctx context.Context, id int64, status domain.ApprovalStatus, decidedAt time.Time) error
	ListApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error)
}

// Auditor фиксирует терминальные переходы заявок в журнале вердиктов.
// Запись делает тот, кто выиграл переход (оператор или таймер), поэтому
// терминальная запись по заявке ровно одна, сколько бы горутин ни ждало.
type Auditor interface {
	Append(ctx context.Context, e audit.Entry) (int64, error)
}

// Notifier транслирует решение оператора ждущим горутинам.
// Реализации: Redis Pub/Sub для распределенного контура,
// LocalNotifier для одного процесса. nil — чистый поллинг.
type Notifier interface {
	Publish(ctx context.Context, id int64, status domain.ApprovalStatus) error
	// Subscribe возвращает канал сигналов по конкретной заявке и функцию
	// отписки. Канал может не получить ни одного сообщения — ждущий код
	// обязан иметь poll-страховку.
	Subscribe(ctx context.Context, id int64) (<-chan domain.ApprovalStatus, func())
}

type Config struct {
	PollInterval time.Duration // Дефолт 1s
	// Лимит создания НОВЫХ заявок на агента. Повторные попытки поверх
	// открытой заявки бесплатны — они схлопываются дедупликацией.
	RatePerMinute int // Дефолт 6
}

type Coordinator struct {
	store    Store
	notifier Notifier
	auditor  Auditor
	logger   *zap.Logger

	pollInterval time.Duration
	ratePerMin   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // Ключ — имя агента
}

func NewCoordinator(store Store, notifier Notifier, auditor Auditor, logger *zap.Logger, cfg Config) *Coordinator {
	c := &Coordinator{
		store:        store,
		notifier:     notifier,
		auditor:      auditor,
		logger:       logger.Named("approvals"),
		pollInterval: cfg.PollInterval,
		ratePerMin:   cfg.RatePerMinute,
		limiters:     make(map[string]*rate.Limiter),
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	if c.ratePerMin <= 0 {
		c.ratePerMin = 6
	}
	return c
}

// Fingerprint схлопывает повторные попытки одного и того же вызова
// в одну заявку оператору.
func Fingerprint(agent, action, argsJSON string) string {
	h := sha256.Sum256([]byte(agent + "\x00" + action + "\x00" + argsJSON))
	return hex.EncodeToString(h[:])
}

// CreateOrFind идемпотентно возвращает открытую заявку для данной тройки
// (агент, действие, аргументы) или создает новую. Второе возвращаемое
// значение — true, если заявка создана этим вызовом.
func (c *Coordinator) CreateOrFind(ctx context.Context, agent, action, argsJSON string) (*domain.ApprovalRequest, bool, error) {
	fp := Fingerprint(agent, action, argsJSON)

	if existing, err := c.store.FindPendingApproval(ctx, agent, action, fp); err != nil {
		return nil, false, fmt.Errorf("approval: lookup: %w", err)
	} else if existing != nil {
		return existing, false, nil
	}

	// Лимитируем только создание новых заявок: зацикленный агент не должен
	// заспамить очередь оператора разными вариациями аргументов.
	if !c.limiter(agent).Allow() {
		return nil, false, fmt.Errorf("approval: request rate exceeded for agent %q", agent)
	}

	id, err := c.store.NextID(ctx, SequencePending)
	if err != nil {
		return nil, false, fmt.Errorf("approval: allocate id: %w", err)
	}

	req := &domain.ApprovalRequest{
		ID:          id,
		TraceID:     uuid.New().String(),
		AgentName:   agent,
		Action:      action,
		ArgsJSON:    argsJSON,
		Fingerprint: fp,
		Status:      domain.ApprovalPending,
		CreatedAt:   time.Now().UTC(),
	}

	if err := c.store.CreateApproval(ctx, req); err != nil {
		// Гонка двух конкурентных создателей: проигравший переиспользует
		// заявку победителя.
		if existing, ferr := c.store.FindPendingApproval(ctx, agent, action, fp); ferr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("approval: create: %w", err)
	}

	c.logger.Info("approval request created",
		zap.Int64("id", req.ID),
		zap.String("agent", agent),
		zap.String("action", action))
	return req, true, nil
}

// Decide фиксирует решение оператора. Переход выполняется ровно один раз:
// повторное решение возвращает domain.ErrAlreadyProcessed и не перезапускает
// никаких сигналов.
func (c *Coordinator) Decide(ctx context.Context, id int64, status domain.ApprovalStatus) error {
	if status != domain.ApprovalApproved && status != domain.ApprovalDenied {
		return fmt.Errorf("approval: decision must be APPROVED or DENIED, got %q: %w",
			status, domain.ErrInvalidTransition)
	}

	if err := c.store.DecideApproval(ctx, id, status, time.Now().UTC()); err != nil {
		return err
	}

	c.record(ctx, id, status)
	c.publish(ctx, id, status)
	c.logger.Info("approval decided",
		zap.Int64("id", id),
		zap.String("decision", string(status)))
	return nil
}

// WaitBlocking приостанавливает ТОЛЬКО вызывающую горутину до решения
// оператора, отмены контекста или таймаута. Таймаут фиксируется в заявке
// как TIMEOUT; если решение успело прийти в последний момент — побеждает
// решение оператора.
func (c *Coordinator) WaitBlocking(ctx context.Context, id int64, timeout time.Duration) (domain.ApprovalStatus, error) {
	// Быстрый путь: решение могло быть принято до начала ожидания
	if status, err := c.CheckNonBlocking(ctx, id); err != nil {
		return "", err
	} else if status.Terminal() {
		return status, nil
	}

	var signals <-chan domain.ApprovalStatus
	if c.notifier != nil {
		ch, cancel := c.notifier.Subscribe(ctx, id)
		defer cancel()
		signals = ch
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-deadline.C:
			return c.expire(ctx, id)

		case status, ok := <-signals:
			if !ok {
				// Сигнальный канал умер (обрыв Redis) — остаемся на поллинге
				signals = nil
				continue
			}
			if status.Terminal() {
				return status, nil
			}

		case <-ticker.C:
			status, err := c.CheckNonBlocking(ctx, id)
			if err != nil {
				// Временный сбой хранилища не роняет ожидание: следующий
				// тик повторит проверку, дедлайн все равно ограничен.
				c.logger.Warn("approval poll failed", zap.Int64("id", id), zap.Error(err))
				continue
			}
			if status.Terminal() {
				return status, nil
			}
		}
	}
}

// CheckNonBlocking мгновенно возвращает текущий статус заявки.
// PENDING — полноценный результат «решения еще нет», не ошибка.
func (c *Coordinator) CheckNonBlocking(ctx context.Context, id int64) (domain.ApprovalStatus, error) {
	req, err := c.store.GetApproval(ctx, id)
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

// Get возвращает заявку целиком (детали для Console API).
func (c *Coordinator) Get(ctx context.Context, id int64) (*domain.ApprovalRequest, error) {
	return c.store.GetApproval(ctx, id)
}

// List возвращает заявки по статусу (очередь оператора).
func (c *Coordinator) List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	return c.store.ListApprovals(ctx, status)
}

// expire переводит просроченную заявку в TIMEOUT. Если оператор успел
// принять решение параллельно — возвращаем его решение, а не таймаут.
func (c *Coordinator) expire(ctx context.Context, id int64) (domain.ApprovalStatus, error) {
	err := c.store.DecideApproval(ctx, id, domain.ApprovalTimeout, time.Now().UTC())
	if err == nil {
		c.record(ctx, id, domain.ApprovalTimeout)
		c.publish(ctx, id, domain.ApprovalTimeout)
		c.logger.Warn("approval expired without decision", zap.Int64("id", id))
		return domain.ApprovalTimeout, nil
	}
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		return c.CheckNonBlocking(ctx, id)
	}
	return "", err
}

// record пишет терминальную запись журнала. Вызывается только после
// успешного перехода PENDING -> терминальный статус, поэтому дубликатов
// не бывает даже при конкурентных Decide/expire.
func (c *Coordinator) record(ctx context.Context, id int64, status domain.ApprovalStatus) {
	if c.auditor == nil {
		return
	}
	req, err := c.store.GetApproval(ctx, id)
	if err != nil {
		c.logger.Error("cannot load approval for audit", zap.Int64("id", id), zap.Error(err))
		return
	}

	verdict := domain.VerdictTimeout
	switch status {
	case domain.ApprovalApproved:
		verdict = domain.VerdictApproved
	case domain.ApprovalDenied:
		verdict = domain.VerdictDenied
	}

	entry := audit.Entry{
		AgentName: req.AgentName,
		Action:    req.Action,
		Verdict:   verdict,
		Details:   fmt.Sprintf("approval request #%d: %s", id, status),
	}
	if _, err := c.auditor.Append(ctx, entry); err != nil {
		c.logger.Error("audit append failed for approval",
			zap.Int64("id", id), zap.Error(err))
	}
}

func (c *Coordinator) publish(ctx context.Context, id int64, status domain.ApprovalStatus) {
	if c.notifier == nil {
		return
	}
	// Если сигнал не дошел, ждущие горутины доедут на поллинге (Fail-Safe)
	if err := c.notifier.Publish(ctx, id, status); err != nil {
		c.logger.Warn("decision signal delivery failed",
			zap.Int64("id", id), zap.Error(err))
	}
}

func (c *Coordinator) limiter(agent string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[agent]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(c.ratePerMin)/60.0), c.ratePerMin)
		c.limiters[agent] = l
	}
	return l
}
