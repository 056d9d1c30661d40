package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/aegis-guard/internal/console/handler"
	"github.com/xela07ax/aegis-guard/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка токенов (RS256); реализуется AuthService через
	// встроенный BaseValidator
	validator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler      // /auth/token
	agentHandler    *handler.AgentHandler     // /v1/agents
	policyHandler   *handler.PolicyHandler    // /v1/policies
	approvalHandler *handler.ApprovalHandler  // /v1/approvals (HITL)
	dashHandler     *handler.DashboardHandler // /api/v1/dashboard
	auditHandler    *handler.AuditHandler     // /v1/logs
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	agentH *handler.AgentHandler,
	policyH *handler.PolicyHandler,
	approvalH *handler.ApprovalHandler,
	dashH *handler.DashboardHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		validator:       validator,
		authHandler:     authH,
		agentHandler:    agentH,
		policyHandler:   policyH,
		approvalHandler: approvalH,
		dashHandler:     dashH,
		auditHandler:    auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.validator, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)

		// Управление Агентами (регистрация, Kill-Switch)
		r.Route("/v1/agents", func(r chi.Router) {
			r.Get("/", s.agentHandler.List)    // Таблица агентов со счетчиками
			r.Post("/", s.agentHandler.Create) // Регистрация нового агента
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.agentHandler.Get) // Карточка агента
				r.With(auth.RequireScope("agents.kill")).
					Post("/kill", s.agentHandler.Kill) // Мгновенная пауза (Kill-switch)
				r.With(auth.RequireScope("agents.kill")).
					Post("/revive", s.agentHandler.Revive) // Возврат в работу
				r.With(auth.RequireScope("agents.kill")).
					Post("/toggle", s.agentHandler.Toggle) // Явный статус в теле
				r.Get("/policies", s.policyHandler.AgentRules) // Правила агента
				r.Get("/logs", s.auditHandler.GetAgentLogs)    // Журнал агента
			})
		})

		// Управление Политиками (ALLOW / BLOCK)
		r.Route("/v1/policies", func(r chi.Router) {
			r.With(auth.RequireScope("policies.write")).
				Post("/", s.policyHandler.Upsert)
		})

		// Human-in-the-loop (Approvals)
		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.approvalHandler.List) // Очередь запросов на проверку
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.approvalHandler.GetDetails)
				r.With(auth.RequireScope("approvals.decide")).
					Post("/decide", s.approvalHandler.Decide) // Approve/Deny + сигнал пробуждения
			})
		})

		// Аудит и Логи (Observability)
		r.Get("/v1/logs", s.auditHandler.GetLogs)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
