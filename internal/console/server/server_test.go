package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/aegis-guard/internal/approval"
	"github.com/xela07ax/aegis-guard/internal/audit"
	"github.com/xela07ax/aegis-guard/internal/console/handler"
	"github.com/xela07ax/aegis-guard/internal/console/service"
	"github.com/xela07ax/aegis-guard/internal/directory"
	"github.com/xela07ax/aegis-guard/internal/domain"
	"github.com/xela07ax/aegis-guard/internal/infra/auth"
	"github.com/xela07ax/aegis-guard/internal/registry"
	"github.com/xela07ax/aegis-guard/internal/repository/memory"
)

type consoleRig struct {
	srv         *httptest.Server
	store       *memory.Store
	coordinator *approval.Coordinator
	token       string
}

func newConsoleRig(t *testing.T) *consoleRig {
	t.Helper()
	logger := zap.NewNop()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	store := memory.New()
	trail := audit.NewTrail(store, logger, audit.Config{BufferSize: 0})
	dir := directory.New(store, logger)
	reg := registry.New(store, logger)
	coordinator := approval.NewCoordinator(store, approval.NewLocalNotifier(), trail, logger, approval.Config{
		PollInterval: 10 * time.Millisecond,
	})

	hash, _ := bcrypt.GenerateFromPassword([]byte("operator-pass"), bcrypt.MinCost)
	store.SeedUser(&domain.User{
		ID:           "u-1",
		Username:     "operator",
		Email:        "operator@example.com",
		PasswordHash: string(hash),
		Role:         "admin",
		Scopes:       map[string]bool{"admin": true},
	})

	authService := service.NewAuthService(store,
		auth.NewSigner(key, time.Hour),
		auth.NewBaseValidator(&key.PublicKey))

	console := NewConsoleServer(
		logger,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewAgentHandler(service.NewAgentService(dir, reg, store, nil, logger), logger),
		handler.NewPolicyHandler(service.NewPolicyService(reg, nil, logger)),
		handler.NewApprovalHandler(coordinator, logger),
		handler.NewDashboardHandler(service.NewAgentService(dir, reg, store, nil, logger)),
		handler.NewAuditHandler(service.NewAuditService(trail)),
	)

	srv := httptest.NewServer(console)
	t.Cleanup(srv.Close)

	rig := &consoleRig{srv: srv, store: store, coordinator: coordinator}
	rig.token = rig.login(t, "operator", "operator-pass")
	return rig
}

func (c *consoleRig) login(t *testing.T, user, pass string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Username: user, Password: pass})
	resp, err := http.Post(c.srv.URL+"/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var tok domain.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		t.Fatal(err)
	}
	return tok.AccessToken
}

func (c *consoleRig) do(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	rig := newConsoleRig(t)

	resp, err := http.Get(rig.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health must be open, got %d", resp.StatusCode)
	}
}

func TestProtectedPerimeterRequiresToken(t *testing.T) {
	rig := newConsoleRig(t)

	resp, err := http.Get(rig.srv.URL + "/v1/agents")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	rig := newConsoleRig(t)

	body, _ := json.Marshal(domain.LoginRequest{Username: "operator", Password: "wrong"})
	resp, err := http.Post(rig.srv.URL+"/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}
}

func TestAgentLifecycleOverAPI(t *testing.T) {
	rig := newConsoleRig(t)

	// Регистрация
	resp := rig.do(t, http.MethodPost, "/v1/agents", map[string]string{"name": "CryptoBot", "owner": "trading"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create agent: %d", resp.StatusCode)
	}

	// Kill-switch
	resp = rig.do(t, http.MethodPost, "/v1/agents/CryptoBot/kill", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("kill: %d", resp.StatusCode)
	}

	resp = rig.do(t, http.MethodGet, "/v1/agents/CryptoBot", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get agent: %d", resp.StatusCode)
	}
	var agent domain.Agent
	json.NewDecoder(resp.Body).Decode(&agent)
	if agent.Status != domain.StatusPaused {
		t.Fatalf("kill not applied, status %s", agent.Status)
	}

	// Revive
	resp = rig.do(t, http.MethodPost, "/v1/agents/CryptoBot/revive", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("revive: %d", resp.StatusCode)
	}

	// Несуществующий агент
	resp = rig.do(t, http.MethodPost, "/v1/agents/ghost/kill", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("kill of unknown agent must 404, got %d", resp.StatusCode)
	}
}

func TestAgentToggleByExplicitStatus(t *testing.T) {
	rig := newConsoleRig(t)

	rig.do(t, http.MethodPost, "/v1/agents", map[string]string{"name": "bot"})

	resp := rig.do(t, http.MethodPost, "/v1/agents/bot/toggle", map[string]string{"status": "PAUSED"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("toggle to PAUSED: %d", resp.StatusCode)
	}

	resp = rig.do(t, http.MethodGet, "/v1/agents/bot", nil)
	var agent domain.Agent
	json.NewDecoder(resp.Body).Decode(&agent)
	if agent.Status != domain.StatusPaused {
		t.Fatalf("toggle not applied: %s", agent.Status)
	}

	resp = rig.do(t, http.MethodPost, "/v1/agents/bot/toggle", map[string]string{"status": "SLEEPING"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown status must 400, got %d", resp.StatusCode)
	}
}

func TestRegistrationSeedsPolicies(t *testing.T) {
	rig := newConsoleRig(t)

	resp := rig.do(t, http.MethodPost, "/v1/agents", map[string]any{
		"name":  "bot",
		"owner": "trading",
		"policies": map[string][]string{
			"allowed": {"get_price", "get_balance"},
			"blocked": {"withdraw"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create with policies: %d", resp.StatusCode)
	}

	resp = rig.do(t, http.MethodGet, "/v1/agents/bot/policies", nil)
	var set domain.PolicySet
	json.NewDecoder(resp.Body).Decode(&set)
	if len(set.Allowed) != 2 || len(set.Blocked) != 1 {
		t.Fatalf("seeded policies not visible: %+v", set)
	}
}

func TestPolicyUpsertAndRead(t *testing.T) {
	rig := newConsoleRig(t)

	rig.do(t, http.MethodPost, "/v1/agents", map[string]string{"name": "bot"})

	resp := rig.do(t, http.MethodPost, "/v1/policies", map[string]string{
		"agent_name": "bot", "action": "get_price", "rule_type": "ALLOW",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("upsert: %d", resp.StatusCode)
	}
	resp = rig.do(t, http.MethodPost, "/v1/policies", map[string]string{
		"agent_name": "bot", "action": "withdraw", "rule_type": "BLOCK",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("upsert: %d", resp.StatusCode)
	}

	// UNKNOWN хранить нельзя
	resp = rig.do(t, http.MethodPost, "/v1/policies", map[string]string{
		"agent_name": "bot", "action": "x", "rule_type": "UNKNOWN",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("UNKNOWN must be rejected, got %d", resp.StatusCode)
	}

	resp = rig.do(t, http.MethodGet, "/v1/agents/bot/policies", nil)
	var set domain.PolicySet
	json.NewDecoder(resp.Body).Decode(&set)
	if len(set.Allowed) != 1 || len(set.Blocked) != 1 {
		t.Fatalf("unexpected policy set: %+v", set)
	}
}

func TestApprovalDecisionFlowOverAPI(t *testing.T) {
	rig := newConsoleRig(t)
	ctx := context.Background()

	req, _, err := rig.coordinator.CreateOrFind(ctx, "bot", "transfer", `{"amount":10}`)
	if err != nil {
		t.Fatal(err)
	}

	// Очередь оператора
	resp := rig.do(t, http.MethodGet, "/v1/approvals", nil)
	var queue []*domain.ApprovalRequest
	json.NewDecoder(resp.Body).Decode(&queue)
	if len(queue) != 1 || queue[0].ID != req.ID {
		t.Fatalf("queue must show the pending request: %+v", queue)
	}

	// Решение
	resp = rig.do(t, http.MethodPost, "/v1/approvals/1/decide", map[string]string{"decision": "APPROVED"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("decide: %d", resp.StatusCode)
	}

	// Повторное решение — конфликт
	resp = rig.do(t, http.MethodPost, "/v1/approvals/1/decide", map[string]string{"decision": "DENIED"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double decision must 409, got %d", resp.StatusCode)
	}

	// Терминальная запись в журнале
	resp = rig.do(t, http.MethodGet, "/v1/logs", nil)
	var logs []service.LogView
	json.NewDecoder(resp.Body).Decode(&logs)
	if len(logs) != 1 || logs[0].Verdict != domain.VerdictApproved {
		t.Fatalf("expected single APPROVED log entry, got %+v", logs)
	}
}

func TestDecideBodyIsExplicitDecision(t *testing.T) {
	rig := newConsoleRig(t)
	ctx := context.Background()

	req, _, err := rig.coordinator.CreateOrFind(ctx, "bot", "transfer", `{"amount":10}`)
	if err != nil {
		t.Fatal(err)
	}

	// Тело без поля decision — ошибка клиента, а не молчаливый отказ
	resp := rig.do(t, http.MethodPost, "/v1/approvals/1/decide", map[string]any{"approved": true})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("body without decision must 400, got %d", resp.StatusCode)
	}
	resp = rig.do(t, http.MethodPost, "/v1/approvals/1/decide", map[string]string{"decision": "MAYBE"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown decision must 400, got %d", resp.StatusCode)
	}

	// Заявка не тронута отклоненными телами
	status, err := rig.coordinator.CheckNonBlocking(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status != domain.ApprovalPending {
		t.Fatalf("rejected bodies must not decide the request, got %s", status)
	}

	// Явное решение применяется буквально (регистр не важен)
	resp = rig.do(t, http.MethodPost, "/v1/approvals/1/decide", map[string]string{"decision": "approved"})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("decide: %d", resp.StatusCode)
	}
	status, _ = rig.coordinator.CheckNonBlocking(ctx, req.ID)
	if status != domain.ApprovalApproved {
		t.Fatalf("decision APPROVED must approve, got %s", status)
	}
}

func TestDashboardStats(t *testing.T) {
	rig := newConsoleRig(t)

	rig.do(t, http.MethodPost, "/v1/agents", map[string]string{"name": "a"})
	rig.do(t, http.MethodPost, "/v1/agents", map[string]string{"name": "b"})
	rig.do(t, http.MethodPost, "/v1/agents/b/kill", nil)

	resp := rig.do(t, http.MethodGet, "/api/v1/dashboard/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d", resp.StatusCode)
	}
	var stats domain.GlobalStats
	json.NewDecoder(resp.Body).Decode(&stats)
	if stats.RegisteredAgents != 2 || stats.ActiveAgents != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.RiskLevel != "LOW" {
		t.Fatalf("no blocks yet, risk must be LOW: %+v", stats)
	}
}
