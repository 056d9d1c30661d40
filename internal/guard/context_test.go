package guard

import (
	"context"
	"sync"
	"testing"
)

func TestCurrentWithoutBinding(t *testing.T) {
	if _, ok := Current(context.Background()); ok {
		t.Fatal("expected no agent on empty context")
	}
}

func TestWithNesting(t *testing.T) {
	ctx := With(context.Background(), "outer")
	inner := With(ctx, "inner")

	if agent, _ := Current(inner); agent != "inner" {
		t.Fatalf("inner binding must win, got %q", agent)
	}
	// Внешний контекст не затронут
	if agent, _ := Current(ctx); agent != "outer" {
		t.Fatalf("outer binding changed, got %q", agent)
	}
}

func TestWithGoroutineIsolation(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]string, 2)

	for i, name := range []string{"agent-a", "agent-b"} {
		wg.Add(1)
		go func(idx int, name string) {
			defer wg.Done()
			ctx := With(context.Background(), name)
			results[idx], _ = Current(ctx)
		}(i, name)
	}
	wg.Wait()

	if results[0] != "agent-a" || results[1] != "agent-b" {
		t.Fatalf("bindings leaked between goroutines: %v", results)
	}
}

func TestBind(t *testing.T) {
	fn := Bind("bound-agent", func(ctx context.Context) (string, error) {
		agent, _ := Current(ctx)
		return agent, nil
	})

	got, err := fn(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "bound-agent" {
		t.Fatalf("expected bound-agent, got %q", got)
	}
}
