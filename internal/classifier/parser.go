package classifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xela07ax/novel-moderation/internal/domain"
)

// Правила подстановки, когда модель вернула мусор или неполный ответ.
const (
	FallbackStatus     = domain.StatusPending // нет/битый auditStatus -> человек
	FallbackConfidence = 0.5                  // нет aiConfidence
	FallbackReason     = "audit completed"    // нет auditReason
	UnparseableReason  = "model response could not be parsed, needs human review"
)

var (
	// Первый плоский {...}, в котором упоминается auditStatus. Ответ модели не обязан быть чистым JSON.
	blockRe      = regexp.MustCompile(`\{[^{}]*auditStatus[^{}]*\}`)
	statusRe     = regexp.MustCompile(`"?auditStatus"?\s*[:=]\s*"?\s*(-?\d+)`)
	confidenceRe = regexp.MustCompile(`"?aiConfidence"?\s*[:=]\s*"?\s*(-?(?:\d+(?:\.\d*)?|\.\d+))`)
	reasonRe     = regexp.MustCompile(`"?auditReason"?\s*[:=]\s*"((?:[^"\\]|\\.)*)"`)
)

// ParseVerdict - мягкий разбор ответа модели. Каждое поле достается отдельно,
// отсутствующее поле заменяется своим правилом по умолчанию. Никогда не возвращает ошибку.
func ParseVerdict(raw string) domain.Verdict {
	block := blockRe.FindString(raw)
	if block == "" {
		return domain.Verdict{
			Status:     FallbackStatus,
			Confidence: FallbackConfidence,
			Reason:     UnparseableReason,
		}
	}

	v := domain.Verdict{
		Status:     parseStatus(block),
		Confidence: FallbackConfidence,
		Reason:     FallbackReason,
	}

	if c, ok := parseConfidence(block); ok {
		v.Confidence = c
		v.HasConfidence = true
	}
	if r := parseReason(block); r != "" {
		v.Reason = r
	}
	return v
}

func parseStatus(block string) domain.AuditStatus {
	m := statusRe.FindStringSubmatch(block)
	if m == nil {
		return FallbackStatus
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return FallbackStatus
	}
	switch domain.AuditStatus(n) {
	case domain.StatusPassed:
		return domain.StatusPassed
	case domain.StatusRejected:
		return domain.StatusRejected
	}
	return FallbackStatus
}

func parseConfidence(block string) (float64, bool) {
	m := confidenceRe.FindStringSubmatch(block)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return min(max(f, 0), 1), true
}

func parseReason(block string) string {
	m := reasonRe.FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	// Пробуем снять JSON-экранирование, иначе оставляем как есть
	if s, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(m[1])
}
