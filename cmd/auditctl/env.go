package main

import (
	"context"

	"github.com/xela07ax/novel-moderation/internal/audit"
	"github.com/xela07ax/novel-moderation/internal/catalog"
	"github.com/xela07ax/novel-moderation/internal/engine"
	"github.com/xela07ax/novel-moderation/internal/infra"
	"github.com/xela07ax/novel-moderation/internal/repository/postgres"
)

// openStore - подключение к базе для команд, которым нужен леджер.
func openStore(ctx context.Context) (*postgres.Store, error) {
	return postgres.Open(ctx, cfg.Database)
}

// manualAuditor собирает оркестратор без классификатора: только ручные решения.
// closeFn сбрасывает журнал и закрывает соединения.
func manualAuditor(ctx context.Context, store *postgres.Store) (*engine.Orchestrator, func(), error) {
	rdb, err := infra.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}

	journal := audit.NewJournal(postgres.NewJournalRepo(store), nil, audit.Options{BatchSize: 1}, logger)
	journal.Start()

	orch := engine.NewOrchestrator(
		engine.OrchestratorConfig{CatalogReasonLimit: cfg.Moderation.CatalogReasonLimit},
		postgres.NewLedgerRepo(store),
		postgres.NewCatalogRepo(store),
		catalog.NewSearchNotifier(rdb, infra.RedisChanSearchRefresh),
		nil,
		journal,
		nil,
		logger,
	)
	return orch, func() {
		journal.Stop()
		rdb.Close()
	}, nil
}
