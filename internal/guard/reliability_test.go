package guard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/xela07ax/aegis-guard/internal/domain"
	"github.com/xela07ax/aegis-guard/internal/repository"
)

// flakyStore отдает ошибку первые failures вызовов, потом работает.
type flakyStore struct {
	repository.Store
	failures int32
	calls    int32
}

func (s *flakyStore) GetAgent(_ context.Context, name string) (*domain.Agent, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if n <= atomic.LoadInt32(&s.failures) {
		return nil, errors.New("connection reset")
	}
	return &domain.Agent{Name: name, Status: domain.StatusActive}, nil
}

func (s *flakyStore) GetRule(_ context.Context, _, _ string) (domain.RuleType, error) {
	return domain.RuleAllow, nil
}

func TestReliableStoreRetriesTransientFailure(t *testing.T) {
	store := &flakyStore{failures: 2} // Два сбоя, третья попытка удачная
	rs := NewReliableStore(store, nil)

	a, err := rs.GetAgent(context.Background(), "bot")
	if err != nil {
		t.Fatalf("transient failures must be retried away: %v", err)
	}
	if a.Name != "bot" {
		t.Fatalf("unexpected agent %+v", a)
	}
	if got := atomic.LoadInt32(&store.calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestReliableStoreFailsClosedAfterRetries(t *testing.T) {
	store := &flakyStore{failures: 1000}
	rs := NewReliableStore(store, nil)

	if _, err := rs.GetAgent(context.Background(), "bot"); err == nil {
		t.Fatal("persistent failure must surface as error, not as a verdict")
	}
}

type missingStore struct {
	repository.Store
	calls int32
}

func (s *missingStore) GetAgent(_ context.Context, _ string) (*domain.Agent, error) {
	atomic.AddInt32(&s.calls, 1)
	return nil, domain.ErrAgentNotFound
}

func TestReliableStoreDoesNotRetryDomainMiss(t *testing.T) {
	store := &missingStore{}
	rs := NewReliableStore(store, nil)

	_, err := rs.GetAgent(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrAgentNotFound) {
		t.Fatalf("domain miss must pass through untouched, got %v", err)
	}
	if got := atomic.LoadInt32(&store.calls); got != 1 {
		t.Fatalf("not-found must not be retried, got %d attempts", got)
	}
}
