package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GenAIConfig - настройки подключения к Gemini API.
type GenAIConfig struct {
	APIKey         string
	Model          string
	Temperature    float32
	Timeout        time.Duration
	RefusalMarkers []string
}

// GenAIModel реализует classifier.Model поверх google.golang.org/genai.
type GenAIModel struct {
	client  *genai.Client
	model   string
	temp    float32
	timeout time.Duration
	markers []string
}

func NewGenAIModel(ctx context.Context, cfg GenAIConfig) (*GenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIModel{
		client:  client,
		model:   cfg.Model,
		temp:    cfg.Temperature,
		timeout: cfg.Timeout,
		markers: cfg.RefusalMarkers,
	}, nil
}

// Generate отправляет один запрос к модели. Ретраев здесь нет - их делает слой потребления сообщений.
func (m *GenAIModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	// Защитный таймаут на уровне вызова
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(m.temp),
	})
	if err != nil {
		return "", m.classifyError(err)
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", &ContentRefusalError{Marker: string(fb.BlockReason)}
	}
	if len(resp.Candidates) > 0 {
		switch reason := resp.Candidates[0].FinishReason; reason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent,
			genai.FinishReasonBlocklist, genai.FinishReasonSPII:
			return "", &ContentRefusalError{Marker: string(reason)}
		}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("genai: empty response")
	}
	return text, nil
}

func (m *GenAIModel) classifyError(err error) error {
	code, msg := apiErrorDetails(err)
	if marker := findMarker(msg, m.markers); marker != "" {
		return &ContentRefusalError{Marker: marker, Cause: err}
	}
	if code == http.StatusTooManyRequests {
		return &ThrottleError{RetryAfter: 10 * time.Second, Cause: err}
	}
	return fmt.Errorf("genai generate failed: %w", err)
}

func apiErrorDetails(err error) (int, string) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message + " " + apiErr.Status
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Message + " " + apiErrPtr.Status
	}
	return 0, err.Error()
}

// Name - для логов и метрик.
func (m *GenAIModel) Name() string {
	return "genai:" + m.model
}
