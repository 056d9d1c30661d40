package audit

/*
Файл trail.go реализует журнал вердиктов (Audit Trail) — единственный
источник правды о том, что произошло с каждой попыткой действия.

Ключевые особенности архитектуры:
- Синхронная выдача ID: Append выделяет монотонный ID из общего секвенсора
  до постановки записи в очередь. Точка сериализации — мьютекс вокруг
  выделения ID, поэтому порядок ID всегда совпадает с порядком финализации
  вердиктов, даже при конкурентных писателях.
- Non-blocking Persistence: сама запись в хранилище идет пачками через
  канал-буфер, задержки БД не влияют на время ответа шлюза.
- Drain Pattern & Graceful Shutdown: при остановке канал закрывается,
  воркер дочитывает остатки и делает финальный flush — записи не теряются.
- Синхронный режим: при нулевом размере буфера каждая запись уходит в
  хранилище немедленно. Используется в тестах и в demo-сценарии.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SequenceAudit — имя последовательности журнала в общем секвенсоре.
const SequenceAudit = "audit_log"

// Storage определяет, куда физически сохраняются записи журнала.
type Storage interface {
	// NextID выделяет следующий номер из именованной последовательности.
	NextID(ctx context.Context, sequence string) (int64, error)
	// WriteAuditBatch сохраняет пачку записей за один раз.
	WriteAuditBatch(ctx context.Context, entries []Entry) error
	// ListAudit возвращает записи по фильтру, новые сверху.
	ListAudit(ctx context.Context, f Filter) ([]Entry, error)
}

type Config struct {
	BufferSize    int           // 0 или меньше — синхронный режим без воркера
	BatchSize     int           // Сколько записей копим до внеочередного flush
	FlushInterval time.Duration // Периодический сброс пачки по таймеру
}

type Trail struct {
	ch     chan Entry // nil в синхронном режиме
	store  Storage
	logger *zap.Logger
	wg     sync.WaitGroup

	batchSize     int
	flushInterval time.Duration

	// Точка сериализации: ID выделяется и запись ставится в очередь
	// под одним мьютексом, чтобы порядок в канале совпадал с порядком ID.
	appendMu sync.Mutex

	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewTrail(store Storage, logger *zap.Logger, cfg Config) *Trail {
	t := &Trail{
		store:         store,
		logger:        logger.With(zap.String("mod", "audit-trail")),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}
	if t.batchSize <= 0 {
		t.batchSize = 100
	}
	if t.flushInterval <= 0 {
		t.flushInterval = 500 * time.Millisecond
	}
	if cfg.BufferSize > 0 {
		t.ch = make(chan Entry, cfg.BufferSize)
	}
	return t
}

// Start запускает фонового воркера. В синхронном режиме ничего не делает.
func (t *Trail) Start() {
	if t.ch == nil {
		return
	}
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	if !atomic.CompareAndSwapInt32(&t.isClosed, 0, 1) {
		return
	}
	if t.ch == nil {
		return
	}

	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	// Писатели сериализованы под appendMu: закрытие канала под тем же
	// мьютексом гарантирует, что последний Append уже отправил свою запись,
	// а следующий увидит взведенный флаг и не дойдет до канала.
	t.appendMu.Lock()
	close(t.ch)
	t.appendMu.Unlock()

	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

// Append финализирует вердикт в журнале и возвращает его монотонный ID.
// Сама персистентность может быть отложенной (пачки), но ID и порядок
// фиксируются немедленно.
func (t *Trail) Append(ctx context.Context, e Entry) (int64, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	t.appendMu.Lock()
	// Проверка флага под мьютексом: Stop закрывает канал под ним же,
	// поэтому Append либо успевает до закрытия, либо видит флаг.
	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.appendMu.Unlock()
		t.logger.Warn("audit entry dropped: trail is stopping",
			zap.String("agent", e.AgentName), zap.String("action", e.Action))
		return 0, context.Canceled
	}

	id, err := t.store.NextID(ctx, SequenceAudit)
	if err != nil {
		t.appendMu.Unlock()
		return 0, err
	}
	e.ID = id

	if t.ch == nil {
		// Синхронный режим: пишем сразу, не отпуская мьютекс,
		// чтобы сохранить порядок вставки.
		err := t.store.WriteAuditBatch(ctx, []Entry{e})
		t.appendMu.Unlock()
		return id, err
	}

	// Стратегия Load Shedding: при переполненном буфере запись
	// не блокирует Hot Path, а уходит в обычный лог.
	select {
	case t.ch <- e:
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.Int64("id", e.ID),
			zap.String("agent", e.AgentName),
			zap.String("action", e.Action),
		)
	}
	t.appendMu.Unlock()
	return id, nil
}

// List читает журнал из хранилища, новые записи сверху.
func (t *Trail) List(ctx context.Context, f Filter) ([]Entry, error) {
	return t.store.ListAudit(ctx, f)
}

// Pending возвращает текущее наполнение буфера (для метрик backpressure).
func (t *Trail) Pending() int {
	if t.ch == nil {
		return 0
	}
	return len(t.ch)
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Entry, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст может быть уже закрыт
			if err := t.store.WriteAuditBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case e, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): дочитали остатки, финальный flush.
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, e)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
