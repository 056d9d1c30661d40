package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/aegis-guard/internal/domain"
)

// fakeStorage накапливает записи в памяти и фиксирует порядок вставки.
type fakeStorage struct {
	mu      sync.Mutex
	counter int64
	batches [][]Entry
	all     []Entry
}

func (s *fakeStorage) NextID(_ context.Context, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter, nil
}

func (s *fakeStorage) WriteAuditBatch(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]Entry, len(entries))
	copy(batch, entries)
	s.batches = append(s.batches, batch)
	s.all = append(s.all, batch...)
	return nil
}

func (s *fakeStorage) ListAudit(_ context.Context, f Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.all))
	copy(out, s.all)
	return out, nil
}

func (s *fakeStorage) stored(t *testing.T) []Entry {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.all))
	copy(out, s.all)
	return out
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	store := &fakeStorage{}
	trail := NewTrail(store, zap.NewNop(), Config{BufferSize: 0})

	ctx := context.Background()
	var prev int64
	for i := 0; i < 10; i++ {
		id, err := trail.Append(ctx, Entry{AgentName: "bot", Action: "a", Verdict: domain.VerdictAllowed})
		if err != nil {
			t.Fatal(err)
		}
		if id <= prev {
			t.Fatalf("ids must grow: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestConcurrentAppendsKeepOrder(t *testing.T) {
	store := &fakeStorage{}
	trail := NewTrail(store, zap.NewNop(), Config{BufferSize: 1000, BatchSize: 7, FlushInterval: 10 * time.Millisecond})
	trail.Start()

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if _, err := trail.Append(context.Background(), Entry{
					AgentName: "bot",
					Action:    "op",
					Verdict:   domain.VerdictAllowed,
				}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	trail.Stop() // Drain: все записи обязаны доехать

	entries := store.stored(t)
	if len(entries) != writers*perWriter {
		t.Fatalf("lost entries: stored %d of %d", len(entries), writers*perWriter)
	}

	// Порядок персистентности совпадает с порядком выдачи ID
	for i := 1; i < len(entries); i++ {
		if entries[i].ID <= entries[i-1].ID {
			t.Fatalf("order broken at %d: %d after %d", i, entries[i].ID, entries[i-1].ID)
		}
	}
}

func TestStopFlushesBuffer(t *testing.T) {
	store := &fakeStorage{}
	// Большая пачка и большой интервал: без Stop записи остались бы в буфере
	trail := NewTrail(store, zap.NewNop(), Config{BufferSize: 100, BatchSize: 1000, FlushInterval: time.Hour})
	trail.Start()

	for i := 0; i < 5; i++ {
		if _, err := trail.Append(context.Background(), Entry{AgentName: "bot", Action: "x", Verdict: domain.VerdictBlocked}); err != nil {
			t.Fatal(err)
		}
	}
	trail.Stop()

	if got := len(store.stored(t)); got != 5 {
		t.Fatalf("stop must flush all buffered entries, stored %d", got)
	}
}

func TestStopDuringConcurrentAppends(t *testing.T) {
	store := &fakeStorage{}
	// Буфер заведомо больше, чем писатели успеют отправить: ни одна
	// принятая запись не должна уйти в load shedding.
	trail := NewTrail(store, zap.NewNop(), Config{BufferSize: 100000, BatchSize: 50, FlushInterval: 10 * time.Millisecond})
	trail.Start()

	var accepted int64
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, err := trail.Append(context.Background(), Entry{
					AgentName: "bot",
					Action:    "op",
					Verdict:   domain.VerdictAllowed,
				}); err != nil {
					// Журнал остановлен — писатель выходит
					return
				}
				atomic.AddInt64(&accepted, 1)
			}
		}()
	}

	// Останавливаем прямо под огнем конкурентных писателей
	time.Sleep(5 * time.Millisecond)
	trail.Stop()
	wg.Wait()

	if got := int64(len(store.stored(t))); got != atomic.LoadInt64(&accepted) {
		t.Fatalf("accepted %d entries, stored %d", atomic.LoadInt64(&accepted), got)
	}
}

func TestAppendAfterStopRejected(t *testing.T) {
	store := &fakeStorage{}
	trail := NewTrail(store, zap.NewNop(), Config{BufferSize: 10})
	trail.Start()
	trail.Stop()

	if _, err := trail.Append(context.Background(), Entry{AgentName: "bot"}); err == nil {
		t.Fatal("append after stop must fail")
	}
}

func TestSyncModeWritesImmediately(t *testing.T) {
	store := &fakeStorage{}
	trail := NewTrail(store, zap.NewNop(), Config{BufferSize: 0})

	id, err := trail.Append(context.Background(), Entry{AgentName: "bot", Action: "y", Verdict: domain.VerdictKilled})
	if err != nil {
		t.Fatal(err)
	}

	entries := store.stored(t)
	if len(entries) != 1 || entries[0].ID != id {
		t.Fatalf("sync mode must persist immediately, got %+v", entries)
	}
	if entries[0].Timestamp.IsZero() {
		t.Fatal("append must stamp time")
	}
}
