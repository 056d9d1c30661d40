package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xela07ax/aegis-guard/internal/audit"
	"github.com/xela07ax/aegis-guard/internal/domain"
)

func TestUpsertAgentKeepsStatus(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.UpsertAgent(ctx, "bot", "team-a"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateAgentStatus(ctx, "bot", domain.StatusPaused); err != nil {
		t.Fatal(err)
	}

	// Перерегистрация не оживляет убитого агента
	if err := s.UpsertAgent(ctx, "bot", "team-b"); err != nil {
		t.Fatal(err)
	}
	a, err := s.GetAgent(ctx, "bot")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.StatusPaused {
		t.Fatalf("re-registration reset kill-switch: %s", a.Status)
	}
	if a.Owner != "team-b" {
		t.Fatalf("owner must be updated, got %s", a.Owner)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetAgent(context.Background(), "ghost"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestGetRuleUnknownWithoutError(t *testing.T) {
	s := New()
	ctx := context.Background()

	rt, err := s.GetRule(ctx, "bot", "mystery")
	if err != nil {
		t.Fatal(err)
	}
	if rt != domain.RuleUnknown {
		t.Fatalf("missing rule must read as UNKNOWN, got %s", rt)
	}

	// Перезапись правила: последняя побеждает
	s.UpsertRule(ctx, domain.PolicyRule{AgentName: "bot", Action: "mystery", Type: domain.RuleAllow})
	s.UpsertRule(ctx, domain.PolicyRule{AgentName: "bot", Action: "mystery", Type: domain.RuleBlock})
	rt, _ = s.GetRule(ctx, "bot", "mystery")
	if rt != domain.RuleBlock {
		t.Fatalf("last write must win, got %s", rt)
	}
}

func TestApprovalPendingUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := &domain.ApprovalRequest{
		ID: 1, AgentName: "bot", Action: "transfer",
		Fingerprint: "fp", Status: domain.ApprovalPending, CreatedAt: time.Now(),
	}
	if err := s.CreateApproval(ctx, first); err != nil {
		t.Fatal(err)
	}

	dup := &domain.ApprovalRequest{
		ID: 2, AgentName: "bot", Action: "transfer",
		Fingerprint: "fp", Status: domain.ApprovalPending, CreatedAt: time.Now(),
	}
	if err := s.CreateApproval(ctx, dup); err == nil {
		t.Fatal("second PENDING request with same fingerprint must be rejected")
	}

	// После решения отпечаток освобождается
	if err := s.DecideApproval(ctx, 1, domain.ApprovalDenied, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateApproval(ctx, dup); err != nil {
		t.Fatalf("fingerprint must be reusable after decision: %v", err)
	}
}

func TestDecideApprovalIdempotencyGuard(t *testing.T) {
	s := New()
	ctx := context.Background()

	req := &domain.ApprovalRequest{ID: 7, AgentName: "bot", Action: "x", Fingerprint: "f", Status: domain.ApprovalPending}
	s.CreateApproval(ctx, req)

	if err := s.DecideApproval(ctx, 7, domain.ApprovalApproved, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := s.DecideApproval(ctx, 7, domain.ApprovalDenied, time.Now()); !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
	if err := s.DecideApproval(ctx, 99, domain.ApprovalDenied, time.Now()); !errors.Is(err, domain.ErrApprovalNotFound) {
		t.Fatalf("expected ErrApprovalNotFound, got %v", err)
	}
}

func TestNextIDSequencesAreIndependent(t *testing.T) {
	s := New()
	ctx := context.Background()

	a1, _ := s.NextID(ctx, "seq_a")
	a2, _ := s.NextID(ctx, "seq_a")
	b1, _ := s.NextID(ctx, "seq_b")

	if a1 != 1 || a2 != 2 || b1 != 1 {
		t.Fatalf("sequences must be independent: %d %d %d", a1, a2, b1)
	}
}

func TestListAuditFilterAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	now := time.Now().UTC()
	s.WriteAuditBatch(ctx, []audit.Entry{
		{ID: 1, Timestamp: now, AgentName: "a", Action: "x", Verdict: domain.VerdictAllowed},
		{ID: 2, Timestamp: now, AgentName: "b", Action: "y", Verdict: domain.VerdictBlocked},
		{ID: 3, Timestamp: now, AgentName: "a", Action: "z", Verdict: domain.VerdictKilled},
	})

	all, err := s.ListAudit(ctx, audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != 3 {
		t.Fatalf("expected newest first, got %+v", all)
	}

	onlyA, _ := s.ListAudit(ctx, audit.Filter{AgentName: "a"})
	if len(onlyA) != 2 {
		t.Fatalf("agent filter broken: %+v", onlyA)
	}

	limited, _ := s.ListAudit(ctx, audit.Filter{Limit: 1})
	if len(limited) != 1 || limited[0].ID != 3 {
		t.Fatalf("limit must keep newest, got %+v", limited)
	}
}

func TestGlobalStatsCounters(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.UpsertAgent(ctx, "a", "")
	s.UpsertAgent(ctx, "b", "")
	s.UpdateAgentStatus(ctx, "b", domain.StatusPaused)

	now := time.Now().UTC()
	s.WriteAuditBatch(ctx, []audit.Entry{
		{ID: 1, Timestamp: now, AgentName: "a", Verdict: domain.VerdictBlocked},
		{ID: 2, Timestamp: now, AgentName: "a", Verdict: domain.VerdictAllowed},
		{ID: 3, Timestamp: now.Add(-48 * time.Hour), AgentName: "a", Verdict: domain.VerdictKilled},
	})
	s.CreateApproval(ctx, &domain.ApprovalRequest{ID: 1, AgentName: "a", Action: "x", Fingerprint: "f", Status: domain.ApprovalPending})

	stats, err := s.GlobalStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.RegisteredAgents != 2 || stats.ActiveAgents != 1 {
		t.Fatalf("agent counters wrong: %+v", stats)
	}
	if stats.Blocks24h != 1 {
		t.Fatalf("only blocks inside the window count, got %d", stats.Blocks24h)
	}
	if stats.PendingApprovals != 1 {
		t.Fatalf("pending counter wrong: %+v", stats)
	}
	if stats.RiskLevel != "MEDIUM" {
		t.Fatalf("risk level for 1 block must be MEDIUM, got %s", stats.RiskLevel)
	}
}
