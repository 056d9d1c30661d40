package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/aegis-guard/internal/domain"
	"github.com/xela07ax/aegis-guard/internal/infra"
	"github.com/xela07ax/aegis-guard/internal/registry"
	"go.uber.org/zap"
)

// PolicyService — управление правилами ALLOW/BLOCK из консоли.
type PolicyService struct {
	reg    *registry.Registry
	rdb    *redis.Client // nil в демо-режиме
	logger *zap.Logger
}

func NewPolicyService(reg *registry.Registry, rdb *redis.Client, logger *zap.Logger) *PolicyService {
	return &PolicyService{
		reg:    reg,
		rdb:    rdb,
		logger: logger.Named("policy-service"),
	}
}

// Upsert регистрирует или перезаписывает правило и оповещает слушателей.
// Само применение правила сигнала не требует: следующий вызов агента
// прочитает обновленный реестр напрямую.
func (s *PolicyService) Upsert(ctx context.Context, agent, action string, t domain.RuleType) error {
	if err := s.reg.Upsert(ctx, agent, action, t); err != nil {
		return err
	}

	if s.rdb != nil {
		payload := fmt.Sprintf("%s:%s:%s", agent, action, t)
		if err := s.rdb.Publish(ctx, infra.RedisChanPolicyUpdate, payload).Err(); err != nil {
			s.logger.Warn("policy update signal failed", zap.Error(err))
		}
	}
	return nil
}

// Rules возвращает объявленные правила агента.
func (s *PolicyService) Rules(ctx context.Context, agent string) (*domain.PolicySet, error) {
	return s.reg.PolicySet(ctx, agent)
}
