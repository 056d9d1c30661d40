package memory

/*
Пакет memory — внутрипроцессная реализация repository.Store.

Используется в demo-режиме и в тестах: полная семантика хранилища
(идемпотентный upsert, атомарный Decide, дедупликация PENDING) без
внешних зависимостей. Защита — один RWMutex на все карты: объемы
демо-данных не оправдывают шардирование.
*/

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/aegis-guard/internal/audit"
	"github.com/xela07ax/aegis-guard/internal/domain"
)

type Store struct {
	mu sync.RWMutex

	counters  map[string]int64
	agents    map[string]*domain.Agent
	rules     map[string]domain.PolicyRule // Ключ: agent + "\x00" + action
	log       []audit.Entry
	approvals map[int64]*domain.ApprovalRequest
	users     map[string]*domain.User // Ключ: username
}

func New() *Store {
	return &Store{
		counters:  make(map[string]int64),
		agents:    make(map[string]*domain.Agent),
		rules:     make(map[string]domain.PolicyRule),
		approvals: make(map[int64]*domain.ApprovalRequest),
		users:     make(map[string]*domain.User),
	}
}

func ruleKey(agent, action string) string {
	return agent + "\x00" + action
}

// --- Секвенсор ---

func (s *Store) NextID(_ context.Context, sequence string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[sequence]++
	return s.counters[sequence], nil
}

// --- Агенты ---

func (s *Store) UpsertAgent(_ context.Context, name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if a, ok := s.agents[name]; ok {
		// Статус не трогаем: kill-switch переживает перерегистрацию
		a.Owner = owner
		a.UpdatedAt = now
		return nil
	}
	s.agents[name] = &domain.Agent{
		Name:      name,
		Status:    domain.StatusActive,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *Store) GetAgent(_ context.Context, name string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[name]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) UpdateAgentStatus(_ context.Context, name string, status domain.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[name]
	if !ok {
		return domain.ErrAgentNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListAgents(_ context.Context) ([]*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]*domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		agents = append(agents, &cp)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

// --- Политики ---

func (s *Store) UpsertRule(_ context.Context, rule domain.PolicyRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule.UpdatedAt = time.Now().UTC()
	s.rules[ruleKey(rule.AgentName, rule.Action)] = rule
	return nil
}

func (s *Store) GetRule(_ context.Context, agent, action string) (domain.RuleType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rule, ok := s.rules[ruleKey(agent, action)]; ok {
		return rule.Type, nil
	}
	return domain.RuleUnknown, nil
}

func (s *Store) ListRules(_ context.Context, agent string) ([]domain.PolicyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]domain.PolicyRule, 0)
	for key, rule := range s.rules {
		if strings.HasPrefix(key, agent+"\x00") {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Action < rules[j].Action })
	return rules, nil
}

// --- Журнал вердиктов ---

func (s *Store) WriteAuditBatch(_ context.Context, entries []audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entries...)
	return nil
}

func (s *Store) ListAudit(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	// Новые сверху: идем с хвоста журнала
	entries := make([]audit.Entry, 0)
	for i := len(s.log) - 1; i >= 0 && len(entries) < limit; i-- {
		e := s.log[i]
		if f.AgentName != "" && e.AgentName != f.AgentName {
			continue
		}
		entries = append(entries, e)
	}
	// Батчи могли прийти не в порядке ID, дожимаем сортировкой
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
	return entries, nil
}

// --- Заявки Human-in-the-loop ---

func (s *Store) CreateApproval(_ context.Context, req *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.approvals[req.ID]; ok {
		return fmt.Errorf("memory: approval %d already exists", req.ID)
	}
	// Дедупликация уровня хранилища, как частичный индекс в Postgres
	for _, a := range s.approvals {
		if a.Status == domain.ApprovalPending && a.Fingerprint == req.Fingerprint &&
			a.AgentName == req.AgentName && a.Action == req.Action {
			return fmt.Errorf("memory: pending approval already exists for fingerprint")
		}
	}
	cp := *req
	s.approvals[req.ID] = &cp
	return nil
}

func (s *Store) FindPendingApproval(_ context.Context, agent, action, fingerprint string) (*domain.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.approvals {
		if a.Status == domain.ApprovalPending && a.AgentName == agent &&
			a.Action == action && a.Fingerprint == fingerprint {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) GetApproval(_ context.Context, id int64) (*domain.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.approvals[id]
	if !ok {
		return nil, domain.ErrApprovalNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) DecideApproval(_ context.Context, id int64, status domain.ApprovalStatus, decidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.approvals[id]
	if !ok {
		return domain.ErrApprovalNotFound
	}
	if a.Status != domain.ApprovalPending {
		return domain.ErrAlreadyProcessed
	}
	a.Status = status
	a.DecidedAt = &decidedAt
	return nil
}

func (s *Store) ListApprovals(_ context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*domain.ApprovalRequest, 0)
	for _, a := range s.approvals {
		if status != "" && a.Status != status {
			continue
		}
		cp := *a
		results = append(results, &cp)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID > results[j].ID })
	return results, nil
}

// --- Пользователи ---

// SeedUser добавляет учетную запись оператора (демо-режим).
func (s *Store) SeedUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.Username] = &cp
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// --- Агрегаты дашборда ---

func (s *Store) GlobalStats(_ context.Context) (*domain.GlobalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.GlobalStats{RegisteredAgents: len(s.agents)}
	for _, a := range s.agents {
		if a.Status == domain.StatusActive {
			stats.ActiveAgents++
		}
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	for _, e := range s.log {
		if e.Timestamp.After(cutoff) && deniedVerdict(e.Verdict) {
			stats.Blocks24h++
		}
	}
	for _, a := range s.approvals {
		if a.Status == domain.ApprovalPending {
			stats.PendingApprovals++
		}
	}
	stats.RiskLevel = domain.RiskLevelFor(stats.Blocks24h)
	return stats, nil
}

func (s *Store) AgentStatsList(_ context.Context) ([]*domain.AgentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byAgent := make(map[string]*domain.AgentStats, len(s.agents))
	for name, a := range s.agents {
		byAgent[name] = &domain.AgentStats{
			Agent:     *a,
			DigitalID: domain.DigitalID(name),
		}
	}
	for _, e := range s.log {
		st, ok := byAgent[e.AgentName]
		if !ok {
			continue
		}
		st.TotalActions++
		if deniedVerdict(e.Verdict) {
			st.BlockedActions++
		} else if e.Verdict == domain.VerdictAllowed || e.Verdict == domain.VerdictApproved {
			st.AllowedActions++
		}
	}

	results := make([]*domain.AgentStats, 0, len(byAgent))
	for _, st := range byAgent {
		if st.TotalActions > 0 {
			st.RiskScore = float64(st.BlockedActions) / float64(st.TotalActions) * 100
		}
		results = append(results, st)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

func deniedVerdict(v domain.Verdict) bool {
	switch v {
	case domain.VerdictBlocked, domain.VerdictKilled, domain.VerdictDenied, domain.VerdictTimeout:
		return true
	}
	return false
}
