package connectors

import (
	"context"
	"fmt"
	"math/rand/v2" // Используем v2 для Go 1.25
	"strings"
	"time"
)

// MockModel - локальная имитация классификатора для dev-стенда и dry-run.
// Слова из Banned дают REJECTED, слово "refuse" имитирует отказ модели, "unstable" - сбой.
type MockModel struct {
	Banned  []string
	Latency time.Duration
}

func NewMockModel() *MockModel {
	return &MockModel{Banned: []string{"forbidden", "gore"}}
}

func (m *MockModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	latency := m.Latency
	if latency == 0 {
		// Имитируем задержку 20-120мс
		latency = time.Duration(20+rand.IntN(100)) * time.Millisecond
	}

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	text := strings.ToLower(prompt)
	switch {
	case strings.Contains(text, "unstable"):
		return "", fmt.Errorf("model internal error")
	case strings.Contains(text, "refuse"):
		return "", &ContentRefusalError{Marker: "data_inspection_failed"}
	}

	for _, w := range m.Banned {
		if strings.Contains(text, w) {
			return fmt.Sprintf(`Verdict: {"auditStatus": 2, "aiConfidence": 0.93, "auditReason": "contains banned term %q"}`, w), nil
		}
	}
	return `{"auditStatus": 1, "aiConfidence": 0.91, "auditReason": "no violations found"}`, nil
}
