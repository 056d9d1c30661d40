package main

/*
Демонстрационный сценарий полного контура защиты без внешних сервисов:
хранилище в памяти, журнал в синхронном режиме, роль оператора играет
отдельная горутина. Запуск: go run ./cmd/demo
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/aegis-guard/internal/approval"
	"github.com/xela07ax/aegis-guard/internal/audit"
	"github.com/xela07ax/aegis-guard/internal/directory"
	"github.com/xela07ax/aegis-guard/internal/domain"
	"github.com/xela07ax/aegis-guard/internal/guard"
	"github.com/xela07ax/aegis-guard/internal/registry"
	"github.com/xela07ax/aegis-guard/internal/repository/memory"
)

const agentName = "CryptoBot"

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	store := memory.New()
	// Горячий путь чтения через retry + circuit breaker, как в проде
	safe := guard.NewReliableStore(store, nil)
	trail := audit.NewTrail(store, logger, audit.Config{BufferSize: 0}) // Синхронный журнал
	dir := directory.New(safe, logger)
	reg := registry.New(safe, logger)
	notifier := approval.NewLocalNotifier()
	coordinator := approval.NewCoordinator(store, notifier, trail, logger, approval.Config{
		PollInterval: 200 * time.Millisecond,
	})

	g := guard.New(dir, reg, trail, coordinator, nil, logger, guard.Config{
		ReviewTimeout: 10 * time.Second,
	})
	g.SetMonitorHook(func(agent, action string, verdict domain.Verdict) error {
		fmt.Printf("  [monitor] %s -> %s: %s\n", agent, action, verdict)
		return nil
	})

	ctx := guard.With(context.Background(), agentName)

	// 1. Регистрация агента со стартовыми политиками
	must(g.RegisterAgent(ctx, agentName, "trading-team", domain.PolicySet{
		Allowed: []string{"get_price", "get_balance"},
		Blocked: []string{"withdraw_funds"},
	}))

	// 2. Оборачиваем «опасные» функции агента
	getPrice := g.Wrap("get_price", func(ctx context.Context, args map[string]any) (any, error) {
		return fmt.Sprintf("%v: 64350.10 USD", args["symbol"]), nil
	})
	withdraw := g.Wrap("withdraw_funds", func(ctx context.Context, args map[string]any) (any, error) {
		return "withdrawn", nil
	})
	transfer := g.Wrap("transfer_funds", func(ctx context.Context, args map[string]any) (any, error) {
		return fmt.Sprintf("sent %v to %v", args["amount"], args["to"]), nil
	})

	// --- Сценарий ---

	fmt.Println("\n=== 1. ALLOW: разрешенное действие проходит без остановки")
	res, err := getPrice(ctx, map[string]any{"symbol": "BTC"})
	report(res, err)

	fmt.Println("\n=== 2. BLOCK: запрещенное действие отклоняется, функция не вызывается")
	res, err = withdraw(ctx, map[string]any{"amount": 100000})
	report(res, err)

	fmt.Println("\n=== 3. REVIEW: неизвестное действие ждет решения оператора")
	// «Оператор» одобряет первую заявку в очереди через секунду
	go func() {
		time.Sleep(1 * time.Second)
		pending, _ := coordinator.List(context.Background(), domain.ApprovalPending)
		for _, req := range pending {
			fmt.Printf("  [operator] approving request #%d (%s)\n", req.ID, req.Action)
			coordinator.Decide(context.Background(), req.ID, domain.ApprovalApproved)
		}
	}()
	res, err = transfer(ctx, map[string]any{"amount": 250, "to": "alice"})
	report(res, err)

	fmt.Println("\n=== 4. KILL-SWITCH: пауза запрещает даже разрешенные действия")
	must(dir.Kill(ctx, agentName))
	res, err = getPrice(ctx, map[string]any{"symbol": "ETH"})
	report(res, err)

	var ksErr *guard.KillSwitchError
	if errors.As(err, &ksErr) {
		fmt.Println("  kill-switch подтвержден, возвращаем агента в работу")
	}
	must(dir.Revive(ctx, agentName))
	res, err = getPrice(ctx, map[string]any{"symbol": "ETH"})
	report(res, err)

	fmt.Println("\n=== Журнал вердиктов (новые сверху)")
	entries, _ := trail.List(ctx, audit.Filter{})
	for _, e := range entries {
		fmt.Printf("  #%d %-9s %-15s %s\n", e.ID, e.Verdict, e.Action, e.Details)
	}
}

func report(res any, err error) {
	if err != nil {
		fmt.Printf("  result: DENIED (%v)\n", err)
		return
	}
	fmt.Printf("  result: %v\n", res)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
