package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/xela07ax/novel-moderation/internal/bus"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"go.uber.org/zap"
)

type Auditor interface {
	Audit(ctx context.Context, req domain.AuditRequest) (domain.AuditResult, error)
}

type ResultPublisher interface {
	PublishJSON(ctx context.Context, stream string, v any) error
}

// Worker - потребитель AuditRequest. На каждый запрос уходит ровно один AuditResult:
// любая ошибка или паника внутри обработки превращается в success=false.
type Worker struct {
	auditor      Auditor
	publisher    ResultPublisher
	resultStream string
	metrics      *Metrics
	logger       *zap.Logger
}

func NewWorker(a Auditor, p ResultPublisher, resultStream string, metrics *Metrics, logger *zap.Logger) *Worker {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Worker{
		auditor:      a,
		publisher:    p,
		resultStream: resultStream,
		metrics:      metrics,
		logger:       logger.Named("worker"),
	}
}

// Run блокируется до отмены ctx.
func (w *Worker) Run(ctx context.Context, b bus.Broker, stream, group string) error {
	w.logger.Info("moderation worker started", zap.String("stream", stream), zap.String("group", group))
	return b.Subscribe(ctx, stream, group, w.Handle)
}

// Handle - bus.Handler. Ошибка возвращается только если результат не удалось отправить:
// тогда брокер доставит запрос повторно.
func (w *Worker) Handle(ctx context.Context, msg bus.Message) error {
	res := w.process(ctx, msg)

	if err := w.publisher.PublishJSON(ctx, w.resultStream, res); err != nil {
		w.logger.Error("failed to publish audit result",
			zap.String("task_id", res.TaskID),
			zap.Int64("entity_id", res.EntityID),
			zap.Int64("deliveries", msg.Deliveries),
			zap.Error(err))
		return err
	}

	w.metrics.ResultsEmitted.WithLabelValues(strconv.FormatBool(res.Success)).Inc()
	return nil
}

// process - внешняя граница ошибок.
func (w *Worker) process(ctx context.Context, msg bus.Message) (res domain.AuditResult) {
	var req domain.AuditRequest
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("audit request panicked",
				zap.String("task_id", req.TaskID),
				zap.String("msg_id", msg.ID),
				zap.Any("panic", p))
			res = domain.FailureResult(req, fmt.Errorf("internal error: %v", p))
		}
	}()

	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.logger.Error("undecodable audit request", zap.String("msg_id", msg.ID), zap.Error(err))
		return domain.FailureResult(req, fmt.Errorf("decode audit request: %w", err))
	}

	out, err := w.auditor.Audit(ctx, req)
	if err != nil {
		w.logger.Error("audit request failed",
			zap.String("task_id", req.TaskID),
			zap.Int64("entity_id", req.EntityID),
			zap.Error(err))
		return domain.FailureResult(req, err)
	}
	return out
}
