package connectors

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/novel-moderation/internal/infra"
)

// NewModel выбирает провайдера классификатора по конфигу.
func NewModel(ctx context.Context, cfg infra.ClassifierConfig) (Model, error) {
	switch cfg.Provider {
	case "genai", "":
		m, err := NewGenAIModel(ctx, GenAIConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			Temperature:    cfg.Temperature,
			Timeout:        cfg.Timeout,
			RefusalMarkers: cfg.RefusalMarkers,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	case "mock":
		return NewMockModel(), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

// Protect оборачивает модель лимитером и предохранителем из конфига.
func Protect(m Model, cfg infra.ClassifierConfig, onStateChange func(name string, from, to gobreaker.State)) *ReliabilityWrapper {
	return NewReliabilityWrapper(m, ReliabilityConfig{
		Name:          "classifier",
		RateLimit:     cfg.RateLimit,
		RateBurst:     cfg.RateBurst,
		Timeout:       cfg.Timeout,
		MaxRequests:   cfg.CBMaxRequests,
		Interval:      cfg.CBInterval,
		OpenTimeout:   cfg.CBTimeout,
		Failures:      cfg.CBFailures,
		OnStateChange: onStateChange,
	})
}
