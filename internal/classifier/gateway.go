// Package classifier строит промпт, вызывает внешнюю модель и мягко разбирает ответ в вердикт.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/novel-moderation/internal/connectors"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"github.com/xela07ax/novel-moderation/internal/segment"
	"go.uber.org/zap"
)

// RefusalReason - фиксированная причина для отказа модели по соображениям безопасности.
const RefusalReason = "content blocked by model safety inspection"

// Model - внешняя текстовая модель. Реализации: connectors.GenAIModel, connectors.MockModel.
type Model interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Observer - метрики вызовов (реализует engine.Metrics).
type Observer interface {
	ObserveClassification(outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveClassification(string, time.Duration) {}

// Исходы вызова для метрик
const (
	OutcomeOK      = "ok"
	OutcomeRefused = "refused"
	OutcomeFailed  = "failed"
)

type Gateway struct {
	model    Model
	markers  []string
	observer Observer
	logger   *zap.Logger
}

func NewGateway(model Model, markers []string, observer Observer, logger *zap.Logger) *Gateway {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Gateway{
		model:    model,
		markers:  markers,
		observer: observer,
		logger:   logger.Named("classifier"),
	}
}

// Classify делает ровно один вызов модели и всегда возвращает вердикт:
// отказ модели -> REJECTED 1.0, любой другой сбой -> PENDING с причиной.
func (g *Gateway) Classify(ctx context.Context, in Input) domain.Verdict {
	system, user := BuildPrompt(in)

	start := time.Now()
	raw, err := g.model.Generate(ctx, system, user)
	elapsed := time.Since(start)

	if err != nil {
		if connectors.IsContentRefusal(err, g.markers) {
			g.observer.ObserveClassification(OutcomeRefused, elapsed)
			g.logger.Warn("model refused content",
				zap.String("kind", string(in.Fields.Kind)),
				zap.Int64("entity_id", in.Fields.ID),
				zap.Int("segment", in.Ordinal),
				zap.Error(err))
			return domain.Verdict{
				Status:        domain.StatusRejected,
				Confidence:    1.0,
				HasConfidence: true,
				Reason:        RefusalReason,
				Refused:       true,
			}
		}

		g.observer.ObserveClassification(OutcomeFailed, elapsed)
		g.logger.Error("classifier call failed",
			zap.String("kind", string(in.Fields.Kind)),
			zap.Int64("entity_id", in.Fields.ID),
			zap.Int("segment", in.Ordinal),
			zap.Error(err))
		return domain.Verdict{
			Status:     domain.StatusPending,
			Confidence: FallbackConfidence,
			Reason:     segment.Truncate(fmt.Sprintf("classifier call failed: %v", err), 200),
		}
	}

	g.observer.ObserveClassification(OutcomeOK, elapsed)
	v := ParseVerdict(raw)
	if v.Reason == UnparseableReason {
		g.logger.Warn("unparseable model response",
			zap.Int64("entity_id", in.Fields.ID),
			zap.String("raw", segment.Truncate(raw, 300)))
	}
	return v
}
