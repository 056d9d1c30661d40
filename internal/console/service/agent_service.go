package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/aegis-guard/internal/directory"
	"github.com/xela07ax/aegis-guard/internal/domain"
	"github.com/xela07ax/aegis-guard/internal/infra"
	"github.com/xela07ax/aegis-guard/internal/registry"
	"go.uber.org/zap"
)

// StatsProvider описывает требования сервиса к витрине хранилища.
type StatsProvider interface {
	GlobalStats(ctx context.Context) (*domain.GlobalStats, error)
	AgentStatsList(ctx context.Context) ([]*domain.AgentStats, error)
}

// AgentService — операции консоли над агентами: регистрация,
// kill-switch и витрина со счетчиками.
type AgentService struct {
	dir    *directory.Directory
	reg    *registry.Registry
	stats  StatsProvider
	rdb    *redis.Client // nil в демо-режиме: сигналы не транслируются
	logger *zap.Logger
}

func NewAgentService(dir *directory.Directory, reg *registry.Registry, stats StatsProvider, rdb *redis.Client, logger *zap.Logger) *AgentService {
	return &AgentService{
		dir:    dir,
		reg:    reg,
		stats:  stats,
		rdb:    rdb,
		logger: logger.Named("agent-service"),
	}
}

// Register регистрирует агента и засевает стартовый набор правил.
// Повторная регистрация обновляет владельца и дописывает правила,
// статус (kill-switch) не трогает.
func (s *AgentService) Register(ctx context.Context, name, owner string, policy domain.PolicySet) error {
	if err := s.dir.Register(ctx, name, owner); err != nil {
		return err
	}
	for _, action := range policy.Allowed {
		if err := s.reg.Upsert(ctx, name, action, domain.RuleAllow); err != nil {
			return err
		}
	}
	for _, action := range policy.Blocked {
		if err := s.reg.Upsert(ctx, name, action, domain.RuleBlock); err != nil {
			return err
		}
	}
	return nil
}

func (s *AgentService) Get(ctx context.Context, name string) (*domain.Agent, error) {
	return s.dir.Get(ctx, name)
}

// updateAgentState — унифицированный механизм переключения kill-switch.
// Источник правды — хранилище; Redis-сигнал лишь оповещает слушателей
// (дашборды, внешние шлюзы), его потеря ничего не ломает: следующая
// проверка действия все равно прочитает живой статус.
func (s *AgentService) updateAgentState(ctx context.Context, name string, status domain.AgentStatus, actionName string) error {
	// 1. Persistence Layer
	if err := s.dir.SetStatus(ctx, name, status); err != nil {
		s.logger.Error("failed to update agent status",
			zap.String("agent", name),
			zap.String("action", actionName),
			zap.Error(err))
		return fmt.Errorf("%s: %w", actionName, err)
	}

	// 2. Real-time Signaling
	if s.rdb != nil {
		payload := infra.KillSwitchPayload(name, string(status))
		if err := s.rdb.Publish(ctx, infra.RedisChanKillSwitch, payload).Err(); err != nil {
			s.logger.Warn("runtime signal delivery failed",
				zap.String("action", actionName),
				zap.Error(err))
		}
	}

	s.logger.Info("agent state updated",
		zap.String("agent", name),
		zap.String("action", actionName),
		zap.String("new_status", string(status)))
	return nil
}

// Kill — мгновенная пауза: все последующие действия агента отклоняются.
func (s *AgentService) Kill(ctx context.Context, name string) error {
	return s.updateAgentState(ctx, name, domain.StatusPaused, "kill-switch-pause")
}

// Revive возвращает агента в работу.
func (s *AgentService) Revive(ctx context.Context, name string) error {
	return s.updateAgentState(ctx, name, domain.StatusActive, "kill-switch-revive")
}

func (s *AgentService) GetGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	return s.stats.GlobalStats(ctx)
}

// List возвращает агентов со счетчиками журнала для основной таблицы.
func (s *AgentService) List(ctx context.Context) ([]*domain.AgentStats, error) {
	list, err := s.stats.AgentStatsList(ctx)
	if err != nil {
		s.logger.Error("failed to list agents", zap.Error(err))
		return nil, fmt.Errorf("service: could not fetch agents: %w", err)
	}
	if list == nil {
		return []*domain.AgentStats{}, nil
	}
	return list, nil
}
