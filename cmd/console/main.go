package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/novel-moderation/internal/audit"
	"github.com/xela07ax/novel-moderation/internal/catalog"
	"github.com/xela07ax/novel-moderation/internal/console/handler"
	"github.com/xela07ax/novel-moderation/internal/console/server"
	"github.com/xela07ax/novel-moderation/internal/console/service"
	"github.com/xela07ax/novel-moderation/internal/engine"
	"github.com/xela07ax/novel-moderation/internal/infra"
	"github.com/xela07ax/novel-moderation/internal/infra/auth"
	"github.com/xela07ax/novel-moderation/internal/repository/postgres"
)

func main() {
	// 1. Инициализация ресурсов
	cfg, v, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, level, err := infra.NewLogger(cfg.Logger, "console")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	infra.WatchLogLevel(v, level, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer store.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("redis unreachable", zap.Error(err))
	}
	defer rdb.Close()

	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("invalid auth private key", zap.Error(err))
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("invalid auth public key", zap.Error(err))
	}

	// 2. Инициализация слоев (Dependency Injection)
	// Ручной аудит идет через то же ядро, что и воркер: классификатор ему не нужен
	journal := audit.NewJournal(postgres.NewJournalRepo(store), nil, audit.Options{
		BufferSize:    cfg.Journal.BufferSize,
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
	}, logger)
	journal.Start()
	defer journal.Stop()

	ledgerRepo := postgres.NewLedgerRepo(store)
	orchestrator := engine.NewOrchestrator(
		engine.OrchestratorConfig{CatalogReasonLimit: cfg.Moderation.CatalogReasonLimit},
		ledgerRepo,
		postgres.NewCatalogRepo(store),
		catalog.NewSearchNotifier(rdb, infra.RedisChanSearchRefresh),
		nil,
		journal,
		nil,
		logger,
	)

	ledgerService := service.NewLedgerService(ledgerRepo, orchestrator, postgres.NewDashboardRepo(store), logger)
	authService := service.NewAuthService(postgres.NewOperatorRepo(store), privateKey, cfg.Auth.TokenTTL)
	auditService := service.NewAuditService(postgres.NewJournalRepo(store))

	consoleSrv := server.NewConsoleServer(
		logger,
		auth.NewBaseValidator(publicKey),
		handler.NewAuthHandler(authService, logger),
		handler.NewLedgerHandler(ledgerService),
		handler.NewDashboardHandler(ledgerService),
		handler.NewAuditHandler(auditService),
	)

	// 3. Запуск сервера
	srv := &http.Server{
		Addr:         cfg.Console.Addr(),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Console.ReadTimeout,
		WriteTimeout: cfg.Console.WriteTimeout,
	}

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("console API stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
