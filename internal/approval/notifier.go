package approval

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/aegis-guard/internal/domain"
	"github.com/xela07ax/aegis-guard/internal/infra"
	"go.uber.org/zap"
)

// RedisNotifier транслирует решения оператора через Redis Pub/Sub.
// Каждая заявка получает собственный канал (infra.ApprovalDecisionChannel),
// поэтому ждущая горутина не фильтрует чужие события.
type RedisNotifier struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisNotifier(client *redis.Client, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		logger: logger.Named("approval-signal"),
	}
}

func (n *RedisNotifier) Publish(ctx context.Context, id int64, status domain.ApprovalStatus) error {
	return n.client.Publish(ctx, infra.ApprovalDecisionChannel(id), string(status)).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, id int64) (<-chan domain.ApprovalStatus, func()) {
	pubsub := n.client.Subscribe(ctx, infra.ApprovalDecisionChannel(id))
	out := make(chan domain.ApprovalStatus, 1)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			status := domain.ApprovalStatus(strings.TrimSpace(msg.Payload))
			select {
			case out <- status:
			default:
				// Слот занят — подписчик еще не забрал прошлый сигнал,
				// терминальный статус он все равно увидит
			}
		}
	}()

	cancel := func() {
		if err := pubsub.Close(); err != nil {
			n.logger.Warn("pubsub close failed", zap.Int64("id", id), zap.Error(err))
		}
	}
	return out, cancel
}

// LocalNotifier — внутрипроцессная реализация Notifier для демо-режима
// и тестов, когда Redis не поднят. Семантика та же: сигнал, не гарантия.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[int64][]chan domain.ApprovalStatus
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[int64][]chan domain.ApprovalStatus)}
}

func (n *LocalNotifier) Publish(_ context.Context, id int64, status domain.ApprovalStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[id] {
		select {
		case ch <- status:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(_ context.Context, id int64) (<-chan domain.ApprovalStatus, func()) {
	ch := make(chan domain.ApprovalStatus, 1)

	n.mu.Lock()
	n.subs[id] = append(n.subs[id], ch)
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		list := n.subs[id]
		for i, c := range list {
			if c == ch {
				n.subs[id] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(n.subs[id]) == 0 {
			delete(n.subs, id)
		}
	}
	return ch, cancel
}
