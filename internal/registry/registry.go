package registry

/*
Пакет registry — декларативный реестр правил ALLOW/BLOCK.

Как и в Directory, чтение идет в хранилище на каждый вызов: обновление
политики ИБ-командой должно применяться к следующему же действию агента,
без инвалидации кэшей.
*/

import (
	"context"
	"fmt"
	"sort"

	"github.com/xela07ax/aegis-guard/internal/domain"
	"go.uber.org/zap"
)

// Store описывает требования Registry к хранилищу.
type Store interface {
	UpsertRule(ctx context.Context, rule domain.PolicyRule) error
	// GetRule возвращает RuleUnknown (без ошибки), если правила нет.
	GetRule(ctx context.Context, agent, action string) (domain.RuleType, error)
	ListRules(ctx context.Context, agent string) ([]domain.PolicyRule, error)
}

type Registry struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.Named("registry"),
	}
}

// Upsert регистрирует правило. На ключ (агент, действие) существует не
// больше одной записи — последняя регистрация побеждает. Изменения политик
// в журнал вердиктов не попадают, это отчетная задача внешнего контура.
func (r *Registry) Upsert(ctx context.Context, agent, action string, t domain.RuleType) error {
	if !t.Declared() {
		return fmt.Errorf("registry: rule type %q cannot be stored", t)
	}
	if agent == "" || action == "" {
		return fmt.Errorf("registry: agent and action are required")
	}
	if err := r.store.UpsertRule(ctx, domain.PolicyRule{
		AgentName: agent,
		Action:    action,
		Type:      t,
	}); err != nil {
		return fmt.Errorf("registry: upsert (%s, %s): %w", agent, action, err)
	}
	r.logger.Debug("policy rule registered",
		zap.String("agent", agent),
		zap.String("action", action),
		zap.String("rule", string(t)))
	return nil
}

// Rule возвращает ALLOW, BLOCK или UNKNOWN. UNKNOWN — не ошибка,
// а сигнал «политика не объявлена», триггер Review.
func (r *Registry) Rule(ctx context.Context, agent, action string) (domain.RuleType, error) {
	return r.store.GetRule(ctx, agent, action)
}

// PolicySet собирает объявленные правила агента для Console API.
func (r *Registry) PolicySet(ctx context.Context, agent string) (*domain.PolicySet, error) {
	rules, err := r.store.ListRules(ctx, agent)
	if err != nil {
		return nil, err
	}

	// Пустые слайсы вместо nil, чтобы фронт получил [], а не null
	set := &domain.PolicySet{
		Allowed: make([]string, 0),
		Blocked: make([]string, 0),
	}
	for _, rule := range rules {
		switch rule.Type {
		case domain.RuleAllow:
			set.Allowed = append(set.Allowed, rule.Action)
		case domain.RuleBlock:
			set.Blocked = append(set.Blocked, rule.Action)
		}
	}
	sort.Strings(set.Allowed)
	sort.Strings(set.Blocked)
	return set, nil
}
