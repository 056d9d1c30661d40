package guard

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/aegis-guard/internal/domain"
	"github.com/xela07ax/aegis-guard/internal/repository"
)

// ReliableStore оборачивает горячий путь чтения хранилища (статус агента,
// правило политики) в retry + circuit breaker. Семантика Fail-Closed:
// если база недоступна и после ретраев, и через предохранитель, наверх
// уходит ошибка — шлюз НЕ исполняет действие при неизвестном статусе.
//
// Ретраи не применяются к записи аудита и заявкам: у них свои контуры
// (батчинг с переотправкой, идемпотентный CreateOrFind).
type ReliableStore struct {
	repository.Store
	cb      *gobreaker.CircuitBreaker
	metrics *Metrics
}

func NewReliableStore(next repository.Store, metrics *Metrics) *ReliableStore {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	rs := &ReliableStore{Store: next, metrics: metrics}

	rs.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "guard-store",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// Доменные "не найдено" — это ответ, а не сбой инфраструктуры:
		// предохранитель на них не реагирует
		IsSuccessful: func(err error) bool {
			return err == nil || domainMiss(err)
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.StoreBreakerState.Set(1)
			} else {
				metrics.StoreBreakerState.Set(0)
			}
		},
	})
	return rs
}

func (rs *ReliableStore) GetAgent(ctx context.Context, name string) (*domain.Agent, error) {
	res, err := rs.call(ctx, func(tCtx context.Context) (interface{}, error) {
		return rs.Store.GetAgent(tCtx, name)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Agent), nil
}

func (rs *ReliableStore) GetRule(ctx context.Context, agent, action string) (domain.RuleType, error) {
	res, err := rs.call(ctx, func(tCtx context.Context) (interface{}, error) {
		return rs.Store.GetRule(tCtx, agent, action)
	})
	if err != nil {
		return "", err
	}
	return res.(domain.RuleType), nil
}

func (rs *ReliableStore) call(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	return rs.cb.Execute(func() (interface{}, error) {
		var result interface{}

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			retry.LastErrorOnly(true),
			// Промах домена ретраить бессмысленно: повтор даст тот же ответ
			retry.RetryIf(func(err error) bool {
				return !domainMiss(err)
			}),
		)
		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()

			var callErr error
			result, callErr = fn(tCtx)
			return callErr
		})
		return result, retryErr
	})
}

func domainMiss(err error) bool {
	return errors.Is(err, domain.ErrAgentNotFound) || errors.Is(err, domain.ErrApprovalNotFound)
}
