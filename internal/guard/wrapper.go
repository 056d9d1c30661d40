package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xela07ax/aegis-guard/internal/domain"
	"go.uber.org/zap"
)

// ActionFunc — сигнатура защищаемого действия. Обертка сохраняет ее,
// поэтому для вызывающего кода защищенная функция неотличима от исходной.
type ActionFunc func(ctx context.Context, args map[string]any) (any, error)

type wrapOptions struct {
	staticAgent string
	nonBlocking bool
}

type WrapOption func(*wrapOptions)

// WithStaticAgent жестко привязывает обертку к агенту, минуя контекст.
// Привязка из контекста при этом игнорируется.
func WithStaticAgent(name string) WrapOption {
	return func(o *wrapOptions) { o.staticAgent = name }
}

// NonBlocking переводит Review-путь в неблокирующий режим: вместо
// ожидания оператора вызов сразу возвращает ApprovalPendingError.
func NonBlocking() WrapOption {
	return func(o *wrapOptions) { o.nonBlocking = true }
}

// Wrap оборачивает действие в полный контур проверки.
// Исходная функция вызывается ТОЛЬКО при разрешающем вердикте; на любом
// отказе она не исполняется вовсе, а вызывающий получает типизированную
// ошибку (или подмену от монитора).
func (g *Guard) Wrap(action string, fn ActionFunc, opts ...WrapOption) ActionFunc {
	var o wrapOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context, args map[string]any) (any, error) {
		started := time.Now()

		agent := o.staticAgent
		if agent == "" {
			var ok bool
			if agent, ok = Current(ctx); !ok {
				return nil, ErrNoActiveAgent
			}
		}

		argsJSON := marshalArgs(args)

		verdict, err := g.decide(ctx, agent, action)
		if err != nil {
			// Fail-Closed: неизвестный статус равносилен запрету
			g.logger.Error("decision path unavailable, action rejected",
				zap.String("agent", agent),
				zap.String("action", action),
				zap.Error(err))
			return nil, err
		}

		defer func() {
			g.metrics.DecisionDuration.
				WithLabelValues(agent, string(verdict)).
				Observe(time.Since(started).Seconds())
		}()

		switch verdict {
		case domain.VerdictKilled:
			if herr := g.finalize(ctx, agent, action, domain.VerdictKilled, "kill-switch active"); herr != nil {
				return nil, herr
			}
			return nil, &KillSwitchError{Agent: agent, Action: action}

		case domain.VerdictBlocked:
			if herr := g.finalize(ctx, agent, action, domain.VerdictBlocked, "blocked by policy"); herr != nil {
				return nil, herr
			}
			return nil, &BlockedError{Agent: agent, Action: action, Reason: ReasonPolicy}

		case domain.VerdictAllowed:
			if herr := g.finalize(ctx, agent, action, domain.VerdictAllowed, argsJSON); herr != nil {
				return nil, herr
			}
			return fn(ctx, args)

		default: // Review
			return g.review(ctx, agent, action, argsJSON, fn, args, o)
		}
	}
}

// review проводит действие через Human-in-the-loop.
func (g *Guard) review(
	ctx context.Context,
	agent, action, argsJSON string,
	fn ActionFunc,
	args map[string]any,
	o wrapOptions,
) (any, error) {
	req, created, err := g.approvals.CreateOrFind(ctx, agent, action, argsJSON)
	if err != nil {
		return nil, fmt.Errorf("guard: cannot open approval request: %w", err)
	}
	if created {
		// REVIEW-запись одна на заявку: пишет только создатель.
		// Повторные попытки переиспользуют заявку молча.
		if herr := g.finalize(ctx, agent, action, domain.VerdictReview,
			fmt.Sprintf("approval request #%d created", req.ID)); herr != nil {
			return nil, herr
		}
	}

	if o.nonBlocking {
		return nil, &ApprovalPendingError{Agent: agent, Action: action, RequestID: req.ID}
	}

	g.metrics.ApprovalsWaiting.Inc()
	defer g.metrics.ApprovalsWaiting.Dec()

	status, err := g.approvals.WaitBlocking(ctx, req.ID, g.cfg.ReviewTimeout)
	if err != nil {
		// Отмена контекста вызывающего: действие не исполнено,
		// заявка остается жить для других ожидающих
		return nil, err
	}

	// Терминальную запись журнала сделал координатор; здесь только
	// метрики, хук и сам исход.
	switch status {
	case domain.ApprovalApproved:
		g.observe(agent, action, domain.VerdictApproved)
		g.notifyMonitor(agent, action, domain.VerdictApproved)
		return fn(ctx, args)

	case domain.ApprovalDenied:
		g.observe(agent, action, domain.VerdictDenied)
		if herr := g.notifyMonitor(agent, action, domain.VerdictDenied); herr != nil {
			return nil, herr
		}
		return nil, &BlockedError{Agent: agent, Action: action, Reason: ReasonDenied}

	case domain.ApprovalTimeout:
		g.observe(agent, action, domain.VerdictTimeout)
		if g.cfg.AllowOnTimeout {
			g.logger.Warn("approval timed out, executing by fail-open config",
				zap.String("agent", agent),
				zap.String("action", action),
				zap.Int64("request", req.ID))
			g.notifyMonitor(agent, action, domain.VerdictTimeout)
			return fn(ctx, args)
		}
		if herr := g.notifyMonitor(agent, action, domain.VerdictTimeout); herr != nil {
			return nil, herr
		}
		return nil, &BlockedError{Agent: agent, Action: action, Reason: ReasonTimeout}

	default:
		return nil, fmt.Errorf("guard: unexpected approval status %q", status)
	}
}

func marshalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		// Несериализуемые аргументы не валят проверку: в заявку и журнал
		// уходит маркер, дедупликация по нему все равно стабильна
		return fmt.Sprintf(`{"_unserializable":%q}`, err.Error())
	}
	return string(data)
}
