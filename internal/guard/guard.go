package guard

/*
Пакет guard — точка принятия решений шлюза.

Порядок проверки жестко зафиксирован: kill-switch > BLOCK > ALLOW > Review.
Каждая проверка ходит в хранилище в момент вызова («живое» чтение):
переключение kill-switch или политики видно уже следующему действию
любого конкурентного агента, без инвалидации кэшей.

Fail-Closed: если статус агента или правило невозможно прочитать
(хранилище недоступно), действие НЕ исполняется.
*/

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/aegis-guard/internal/approval"
	"github.com/xela07ax/aegis-guard/internal/audit"
	"github.com/xela07ax/aegis-guard/internal/directory"
	"github.com/xela07ax/aegis-guard/internal/domain"
	"github.com/xela07ax/aegis-guard/internal/infra"
	"github.com/xela07ax/aegis-guard/internal/registry"
	"go.uber.org/zap"
)

type Config struct {
	// Сколько ждем решения оператора в блокирующем режиме
	ReviewTimeout time.Duration
	// Полярность таймаута. По умолчанию false: не дождались — отказ.
	// true ослабляет контур до Fail-Open, использовать осознанно.
	AllowOnTimeout bool
}

// ConfigFromEngine переводит настройки из config.yaml в Config шлюза.
// Полярность таймаута включается ТОЛЬКО буквальным значением "allow";
// любое другое значение (включая опечатки) остается Fail-Closed.
func ConfigFromEngine(cfg infra.EngineConfig) Config {
	return Config{
		ReviewTimeout:  cfg.ReviewTimeout,
		AllowOnTimeout: strings.EqualFold(cfg.ReviewTimeoutVerdict, "allow"),
	}
}

type Guard struct {
	directory *directory.Directory
	registry  *registry.Registry
	trail     *audit.Trail
	approvals *approval.Coordinator
	logger    *zap.Logger
	metrics   *Metrics
	hooks     hookSlot
	cfg       Config
}

func New(
	dir *directory.Directory,
	reg *registry.Registry,
	trail *audit.Trail,
	approvals *approval.Coordinator,
	metrics *Metrics,
	logger *zap.Logger,
	cfg Config,
) *Guard {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.ReviewTimeout <= 0 {
		cfg.ReviewTimeout = 5 * time.Minute
	}
	return &Guard{
		directory: dir,
		registry:  reg,
		trail:     trail,
		approvals: approvals,
		metrics:   metrics,
		logger:    logger.Named("guard"),
		cfg:       cfg,
	}
}

// SetMonitorHook устанавливает внешний монитор вердиктов. nil снимает хук.
func (g *Guard) SetMonitorHook(h MonitorHook) {
	g.hooks.set(h)
}

// RegisterAgent — регистрация агента вместе с его стартовым набором правил.
// Повторный вызов обновляет правила, но не трогает kill-switch.
func (g *Guard) RegisterAgent(ctx context.Context, name, owner string, policy domain.PolicySet) error {
	if err := g.directory.Register(ctx, name, owner); err != nil {
		return err
	}
	for _, action := range policy.Allowed {
		if err := g.registry.Upsert(ctx, name, action, domain.RuleAllow); err != nil {
			return err
		}
	}
	for _, action := range policy.Blocked {
		if err := g.registry.Upsert(ctx, name, action, domain.RuleBlock); err != nil {
			return err
		}
	}
	return nil
}

// decide выполняет упорядоченную проверку и возвращает предварительный
// вердикт. REVIEW здесь не финал, а направление на Human-in-the-loop.
func (g *Guard) decide(ctx context.Context, agent, action string) (domain.Verdict, error) {
	status, err := g.directory.Status(ctx, agent)
	switch {
	case errors.Is(err, domain.ErrAgentNotFound):
		// Незарегистрированный агент не убит: его действия неизвестны
		// и уходят в Review через проверку политики ниже
	case err != nil:
		return "", fmt.Errorf("guard: agent status unavailable: %w", err)
	case status == domain.StatusPaused:
		return domain.VerdictKilled, nil
	}

	rule, err := g.registry.Rule(ctx, agent, action)
	if err != nil {
		return "", fmt.Errorf("guard: policy rule unavailable: %w", err)
	}

	switch rule {
	case domain.RuleBlock:
		return domain.VerdictBlocked, nil
	case domain.RuleAllow:
		return domain.VerdictAllowed, nil
	default:
		return domain.VerdictReview, nil
	}
}

// finalize фиксирует вердикт в журнале и метриках и дергает монитор.
// Возвращает ошибку подмены от хука (только для запрещающих вердиктов).
func (g *Guard) finalize(ctx context.Context, agent, action string, v domain.Verdict, details string) error {
	if _, err := g.trail.Append(ctx, audit.Entry{
		AgentName: agent,
		Action:    action,
		Verdict:   v,
		Details:   details,
	}); err != nil {
		g.logger.Error("audit append failed",
			zap.String("agent", agent),
			zap.String("action", action),
			zap.String("verdict", string(v)),
			zap.Error(err))
	}
	g.observe(agent, action, v)
	return g.notifyMonitor(agent, action, v)
}

// observe обновляет метрики без записи в журнал (терминальную запись
// по заявке уже сделал координатор).
func (g *Guard) observe(agent, action string, v domain.Verdict) {
	g.metrics.VerdictTotal.WithLabelValues(agent, action, string(v)).Inc()
	g.metrics.AuditBufferFill.Set(float64(g.trail.Pending()))
}

// notifyMonitor вызывает хук. Ошибка хука имеет силу только на
// запрещающих вердиктах — там она подменяет стандартную ошибку.
func (g *Guard) notifyMonitor(agent, action string, v domain.Verdict) error {
	hook := g.hooks.get()
	if hook == nil {
		return nil
	}
	err := hook(agent, action, v)
	if err == nil {
		return nil
	}
	switch v {
	case domain.VerdictBlocked, domain.VerdictKilled, domain.VerdictDenied, domain.VerdictTimeout:
		return err
	default:
		g.logger.Warn("monitor hook error ignored on permissive verdict",
			zap.String("agent", agent),
			zap.String("verdict", string(v)),
			zap.Error(err))
		return nil
	}
}
