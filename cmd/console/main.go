package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-guard/internal/approval"
	"github.com/xela07ax/aegis-guard/internal/audit"
	"github.com/xela07ax/aegis-guard/internal/console/handler"
	"github.com/xela07ax/aegis-guard/internal/console/server"
	"github.com/xela07ax/aegis-guard/internal/console/service"
	"github.com/xela07ax/aegis-guard/internal/directory"
	"github.com/xela07ax/aegis-guard/internal/infra"
	"github.com/xela07ax/aegis-guard/internal/infra/auth"
	"github.com/xela07ax/aegis-guard/internal/registry"
	"github.com/xela07ax/aegis-guard/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// 2. Инфраструктура и ресурсы
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	repo, err := postgres.New(ctx, cfg.Database, logger)
	cancel()
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer repo.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// RSA ключи: консоль и проверяет, и ПОДПИСЫВАЕТ токены
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("cannot parse public key", zap.Error(err))
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("cannot parse private key", zap.Error(err))
	}

	// 3. Доменные слои (Dependency Injection)
	trail := audit.NewTrail(repo, logger, audit.Config{
		BufferSize:    cfg.Engine.AuditBufferSize,
		BatchSize:     cfg.Engine.AuditBatchSize,
		FlushInterval: cfg.Engine.AuditFlushInterval,
	})
	trail.Start()
	defer trail.Stop()

	dir := directory.New(repo, logger)
	reg := registry.New(repo, logger)

	notifier := approval.NewRedisNotifier(rdb, logger)
	coordinator := approval.NewCoordinator(repo, notifier, trail, logger, approval.Config{
		PollInterval:  cfg.Engine.ApprovalPollInterval,
		RatePerMinute: cfg.Engine.ApprovalRatePerMinute,
	})

	authService := service.NewAuthService(repo,
		auth.NewSigner(privKey, cfg.Auth.TokenTTL),
		auth.NewBaseValidator(pubKey))
	agentService := service.NewAgentService(dir, reg, repo, rdb, logger)
	policyService := service.NewPolicyService(reg, rdb, logger)
	auditService := service.NewAuditService(trail)

	consoleSrv := server.NewConsoleServer(
		logger,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewAgentHandler(agentService, logger),
		handler.NewPolicyHandler(policyService),
		handler.NewApprovalHandler(coordinator, logger),
		handler.NewDashboardHandler(agentService),
		handler.NewAuditHandler(auditService),
	)

	// 4. Метрики для Prometheus на отдельном порту
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 5. HTTP Server + Graceful Shutdown
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("Console API stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("Console API exited properly")
}
