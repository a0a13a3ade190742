package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xela07ax/novel-moderation/internal/bus"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"github.com/xela07ax/novel-moderation/internal/segment"
	"go.uber.org/zap"
)

type AuditApplier interface {
	ApplyAudit(ctx context.Context, u domain.CatalogUpdate) (bool, error)
}

type Indexer interface {
	RefreshBook(ctx context.Context, bookID int64) error
}

type ConsumerMetrics struct {
	// Results: пришедшие результаты по исходу (applied, stale, pending, failed, invalid)
	Results *prometheus.CounterVec
}

func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &ConsumerMetrics{
		Results: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_audit_results_total",
			Help: "Audit results consumed by the catalog, by outcome.",
		}, []string{"outcome"}),
	}
}

// ResultConsumer применяет AuditResult к видимым полям каталога.
// Повторная доставка того же результата дает то же состояние.
type ResultConsumer struct {
	store       AuditApplier
	indexer     Indexer
	reasonLimit int
	metrics     *ConsumerMetrics
	logger      *zap.Logger
}

func NewResultConsumer(store AuditApplier, indexer Indexer, reasonLimit int, metrics *ConsumerMetrics, logger *zap.Logger) *ResultConsumer {
	if reasonLimit <= 0 {
		reasonLimit = 500
	}
	if metrics == nil {
		metrics = NewConsumerMetrics(nil)
	}
	return &ResultConsumer{
		store:       store,
		indexer:     indexer,
		reasonLimit: reasonLimit,
		metrics:     metrics,
		logger:      logger.Named("results"),
	}
}

func (c *ResultConsumer) Run(ctx context.Context, b bus.Broker, stream, group string) error {
	c.logger.Info("result consumer started", zap.String("stream", stream), zap.String("group", group))
	return b.Subscribe(ctx, stream, group, c.Handle)
}

// Handle - bus.Handler. Ошибка только на сбое хранилища: тогда результат придет повторно.
func (c *ResultConsumer) Handle(ctx context.Context, msg bus.Message) error {
	var res domain.AuditResult
	if err := json.Unmarshal(msg.Payload, &res); err != nil {
		c.metrics.Results.WithLabelValues("invalid").Inc()
		c.logger.Error("undecodable audit result", zap.String("msg_id", msg.ID), zap.Error(err))
		return nil
	}

	log := c.logger.With(
		zap.String("task_id", res.TaskID),
		zap.String("kind", string(res.EntityKind)),
		zap.Int64("entity_id", res.EntityID),
	)

	if !res.Success {
		c.metrics.Results.WithLabelValues("failed").Inc()
		errMsg := ""
		if res.ErrorMessage != nil {
			errMsg = *res.ErrorMessage
		}
		log.Error("moderation failed on worker side, entity stays pending", zap.String("error", errMsg))
		return nil
	}

	if res.Status == domain.StatusPending {
		c.metrics.Results.WithLabelValues("pending").Inc()
		log.Info("entity queued for human review", zap.Float64("confidence", res.Confidence), zap.String("reason", res.Reason))
		return nil
	}
	if _, err := domain.ParseEntityKind(string(res.EntityKind)); err != nil || !res.Status.Valid() {
		c.metrics.Results.WithLabelValues("invalid").Inc()
		log.Error("audit result with unknown kind or status", zap.Int("status", int(res.Status)))
		return nil
	}

	u := domain.CatalogUpdate{
		Kind:     res.EntityKind,
		EntityID: res.EntityID,
		TaskID:   res.TaskID,
		Status:   res.Status,
	}
	if res.Status == domain.StatusRejected {
		u.Reason = segment.Truncate(res.Reason, c.reasonLimit)
	}

	applied, err := c.store.ApplyAudit(ctx, u)
	if err != nil {
		return fmt.Errorf("apply audit result %s: %w", res.TaskID, err)
	}
	if !applied {
		c.metrics.Results.WithLabelValues("stale").Inc()
		log.Info("result is for an older submission, ignored")
		return nil
	}
	c.metrics.Results.WithLabelValues("applied").Inc()
	log.Info("audit result applied", zap.String("status", res.Status.String()))

	if res.Status == domain.StatusPassed && c.indexer != nil {
		bookID := res.EntityID
		if res.EntityKind == domain.KindChapter {
			bookID = res.BookID
		}
		if bookID > 0 {
			if err := c.indexer.RefreshBook(ctx, bookID); err != nil {
				log.Warn("search refresh trigger failed", zap.Int64("book_id", bookID), zap.Error(err))
			}
		}
	}
	return nil
}
