package directory

/*
Пакет directory — реестр identity агентов и примитив kill-switch.

Принципиальное решение: Status ходит в хранилище на каждый вызов.
Никакого RAM-кэша в пути принятия решения — переключение kill-switch
обязано быть видно уже следующему вызову любого конкурентного клиента.
*/

import (
	"context"
	"fmt"

	"github.com/xela07ax/aegis-guard/internal/domain"
	"go.uber.org/zap"
)

// Store описывает требования Directory к хранилищу.
type Store interface {
	UpsertAgent(ctx context.Context, name, owner string) error
	GetAgent(ctx context.Context, name string) (*domain.Agent, error)
	UpdateAgentStatus(ctx context.Context, name string, status domain.AgentStatus) error
	ListAgents(ctx context.Context) ([]*domain.Agent, error)
}

type Directory struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Directory {
	return &Directory{
		store:  store,
		logger: logger.Named("directory"),
	}
}

// Register идемпотентно регистрирует агента (upsert по имени).
// Повторная регистрация не трогает статус: убитый агент не оживает
// от того, что его процесс перезапустился и снова вызвал Register.
func (d *Directory) Register(ctx context.Context, name, owner string) error {
	if name == "" {
		return fmt.Errorf("directory: agent name is required")
	}
	if err := d.store.UpsertAgent(ctx, name, owner); err != nil {
		return fmt.Errorf("directory: register %q: %w", name, err)
	}
	d.logger.Debug("agent registered", zap.String("agent", name), zap.String("owner", owner))
	return nil
}

// Status возвращает живой статус агента. domain.ErrAgentNotFound —
// отдельное состояние «не зарегистрирован», не PAUSED.
func (d *Directory) Status(ctx context.Context, name string) (domain.AgentStatus, error) {
	a, err := d.store.GetAgent(ctx, name)
	if err != nil {
		return "", err
	}
	return a.Status, nil
}

// Get возвращает карточку агента целиком.
func (d *Directory) Get(ctx context.Context, name string) (*domain.Agent, error) {
	return d.store.GetAgent(ctx, name)
}

// SetStatus переключает kill-switch. Изменение не отзывает уже выданные
// подтверждения, оно влияет только на будущие проверки.
func (d *Directory) SetStatus(ctx context.Context, name string, status domain.AgentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("directory: invalid status %q", status)
	}
	if err := d.store.UpdateAgentStatus(ctx, name, status); err != nil {
		return fmt.Errorf("directory: set status %s for %q: %w", status, name, err)
	}
	d.logger.Info("agent status updated",
		zap.String("agent", name),
		zap.String("status", string(status)))
	return nil
}

// Kill — мгновенная блокировка всех действий агента.
func (d *Directory) Kill(ctx context.Context, name string) error {
	return d.SetStatus(ctx, name, domain.StatusPaused)
}

// Revive возвращает агента в работу.
func (d *Directory) Revive(ctx context.Context, name string) error {
	return d.SetStatus(ctx, name, domain.StatusActive)
}

// List возвращает всех зарегистрированных агентов.
func (d *Directory) List(ctx context.Context) ([]*domain.Agent, error) {
	return d.store.ListAgents(ctx)
}
