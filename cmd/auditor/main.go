package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/xela07ax/novel-moderation/internal/audit"
	"github.com/xela07ax/novel-moderation/internal/bus"
	"github.com/xela07ax/novel-moderation/internal/catalog"
	"github.com/xela07ax/novel-moderation/internal/classifier"
	"github.com/xela07ax/novel-moderation/internal/connectors"
	"github.com/xela07ax/novel-moderation/internal/engine"
	"github.com/xela07ax/novel-moderation/internal/infra"
	"github.com/xela07ax/novel-moderation/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("auditor: %v", err)
	}
}

func run() error {
	// 1. Конфиг и логгер
	cfg, v, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger, level, err := infra.NewLogger(cfg.Logger, "auditor")
	if err != nil {
		return err
	}
	defer logger.Sync()
	infra.WatchLogLevel(v, level, logger)

	// Контекст жизненного цикла: SIGTERM останавливает потребителя и серверы
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Инфраструктура
	store, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	rdb, err := infra.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 3. Классификатор: модель -> лимитер/предохранитель -> шлюз
	model, err := connectors.NewModel(ctx, cfg.Classifier)
	if err != nil {
		return err
	}
	protected := connectors.Protect(model, cfg.Classifier, metrics.BreakerStateChanged)
	gateway := classifier.NewGateway(protected, cfg.Classifier.RefusalMarkers, metrics, logger)

	// Журнал прогонов пишется в базу пачками
	journal := audit.NewJournal(postgres.NewJournalRepo(store), metrics, audit.Options{
		BufferSize:    cfg.Journal.BufferSize,
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
	}, logger)
	journal.Start()
	defer journal.Stop()

	// 4. Ядро модерации
	orchestrator := engine.NewOrchestrator(
		engine.OrchestratorConfig{
			MaxSegmentLength:    cfg.Moderation.MaxSegmentLength,
			BoundaryWindow:      cfg.Moderation.BoundaryWindow,
			ConfidenceThreshold: cfg.Moderation.ConfidenceThreshold,
			CatalogReasonLimit:  cfg.Moderation.CatalogReasonLimit,
			MergedReasonLimit:   cfg.Moderation.MergedReasonLimit,
		},
		postgres.NewLedgerRepo(store),
		postgres.NewCatalogRepo(store),
		catalog.NewSearchNotifier(rdb, infra.RedisChanSearchRefresh),
		gateway,
		journal,
		metrics,
		logger,
	)

	broker := bus.NewRedisStreams(rdb, bus.StreamsConfig{
		MaxDeliveries: cfg.Bus.MaxDeliveries,
		ClaimAfter:    cfg.Bus.ClaimAfter,
		Block:         cfg.Bus.Block,
		Batch:         cfg.Bus.Batch,
		MaxLen:        cfg.Bus.StreamMaxLen,
	}, logger)
	worker := engine.NewWorker(
		orchestrator,
		bus.NewPublisher(broker, cfg.Bus.PublishAttempts),
		infra.StreamAuditResults,
		metrics,
		logger,
	)

	// 5. Серверы: /metrics и gRPC health
	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	logger.Info("classifier configured", zap.String("provider", cfg.Classifier.Provider), zap.String("model", cfg.Classifier.Model))

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen gRPC: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx, broker, infra.StreamAuditRequests, infra.GroupModerationWorkers)
	})
	g.Go(func() error {
		logger.Info("metrics server started", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC health server started", zap.String("addr", cfg.GRPC.Addr))
		return grpcSrv.Serve(lis)
	})

	// 6. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("auditor stopping...")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", zap.Error(err))
		}
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("auditor exited properly")
	return nil
}
