package connectors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrProviderPaused - вызов отклонен до обращения к модели: еще действует Retry-After.
var ErrProviderPaused = errors.New("provider paused after throttling")

// ThrottleError - провайдер попросил подождать (429 / quota).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// ContentRefusalError - модель отказалась обрабатывать текст по соображениям безопасности.
// Это не сбой, а окончательный вердикт REJECTED.
type ContentRefusalError struct {
	Marker string // что именно сработало: block reason, finish reason или маркер из текста ошибки
	Cause  error
}

func (e *ContentRefusalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("content refused by model (%s): %v", e.Marker, e.Cause)
	}
	return fmt.Sprintf("content refused by model (%s)", e.Marker)
}

func (e *ContentRefusalError) Unwrap() error { return e.Cause }

// DefaultRefusalMarkers - подстроки в тексте ошибки провайдера, означающие отказ модерации.
var DefaultRefusalMarkers = []string{
	"data_inspection_failed",
	"datainspectionfailed",
	"inappropriate content",
	"content_filter",
}

// IsContentRefusal распознает отказ модели: по типу ошибки или по маркеру в сообщении.
func IsContentRefusal(err error, markers []string) bool {
	if err == nil {
		return false
	}
	var refusal *ContentRefusalError
	if errors.As(err, &refusal) {
		return true
	}
	return findMarker(err.Error(), markers) != ""
}

func findMarker(msg string, markers []string) string {
	if len(markers) == 0 {
		markers = DefaultRefusalMarkers
	}
	lower := strings.ToLower(msg)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return m
		}
	}
	return ""
}
