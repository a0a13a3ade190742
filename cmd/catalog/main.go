package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/novel-moderation/internal/bus"
	"github.com/xela07ax/novel-moderation/internal/catalog"
	"github.com/xela07ax/novel-moderation/internal/infra"
	"github.com/xela07ax/novel-moderation/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("catalog: %v", err)
	}
}

func run() error {
	cfg, v, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger, level, err := infra.NewLogger(cfg.Logger, "catalog")
	if err != nil {
		return err
	}
	defer logger.Sync()
	infra.WatchLogLevel(v, level, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	broker := bus.NewRedisStreams(rdb, bus.StreamsConfig{
		MaxDeliveries: cfg.Bus.MaxDeliveries,
		ClaimAfter:    cfg.Bus.ClaimAfter,
		Block:         cfg.Bus.Block,
		Batch:         cfg.Bus.Batch,
		MaxLen:        cfg.Bus.StreamMaxLen,
	}, logger)

	catalogRepo := postgres.NewCatalogRepo(store)
	svc := catalog.NewService(catalogRepo, bus.NewPublisher(broker, cfg.Bus.PublishAttempts), infra.StreamAuditRequests, logger)

	reg := prometheus.NewRegistry()
	consumer := catalog.NewResultConsumer(
		catalogRepo,
		catalog.NewSearchNotifier(rdb, infra.RedisChanSearchRefresh),
		cfg.Moderation.CatalogReasonLimit,
		catalog.NewConsumerMetrics(reg),
		logger,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", catalog.NewHandler(svc).Routes())

	srv := &http.Server{
		Addr:         cfg.Catalog.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Catalog.ReadTimeout,
		WriteTimeout: cfg.Catalog.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx, broker, infra.StreamAuditResults, infra.GroupCatalogResults)
	})
	g.Go(func() error {
		logger.Info("catalog API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("catalog API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("catalog exited properly")
	return nil
}
