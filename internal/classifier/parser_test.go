package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/novel-moderation/internal/domain"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		status     domain.AuditStatus
		confidence float64
		hasConf    bool
		reason     string
	}{
		{
			name:       "clean json",
			raw:        `{"auditStatus": 1, "aiConfidence": 0.92, "auditReason": "no issues"}`,
			status:     domain.StatusPassed,
			confidence: 0.92,
			hasConf:    true,
			reason:     "no issues",
		},
		{
			name:       "noise around block",
			raw:        "Sure! Here is my verdict:\n```json\n{\"auditStatus\":2,\"aiConfidence\":\"0.85\",\"auditReason\":\"graphic gore\"}\n```\nThanks",
			status:     domain.StatusRejected,
			confidence: 0.85,
			hasConf:    true,
			reason:     "graphic gore",
		},
		{
			name:       "nested object picks inner block",
			raw:        `{"result": {"auditStatus": 2, "aiConfidence": 0.7, "auditReason": "spam \"links\""}}`,
			status:     domain.StatusRejected,
			confidence: 0.7,
			hasConf:    true,
			reason:     `spam "links"`,
		},
		{
			name:       "missing confidence and reason",
			raw:        `{"auditStatus": 1}`,
			status:     domain.StatusPassed,
			confidence: FallbackConfidence,
			reason:     FallbackReason,
		},
		{
			name:       "missing status",
			raw:        `{"auditStatus": "unknown", "aiConfidence": 0.4}`,
			status:     domain.StatusPending,
			confidence: 0.4,
			hasConf:    true,
			reason:     FallbackReason,
		},
		{
			name:       "unexpected status value",
			raw:        `{"auditStatus": 7, "aiConfidence": 0.99, "auditReason": ""}`,
			status:     domain.StatusPending,
			confidence: 0.99,
			hasConf:    true,
			reason:     FallbackReason,
		},
		{
			name:       "confidence clamped",
			raw:        `{"auditStatus": 1, "aiConfidence": 3.5}`,
			status:     domain.StatusPassed,
			confidence: 1,
			hasConf:    true,
			reason:     FallbackReason,
		},
		{
			name:       "no block at all",
			raw:        "I cannot decide.",
			status:     domain.StatusPending,
			confidence: FallbackConfidence,
			reason:     UnparseableReason,
		},
		{
			name:       "first matching block wins",
			raw:        `{"note": "x"} {"auditStatus": 2, "aiConfidence": 0.6} {"auditStatus": 1, "aiConfidence": 0.9}`,
			status:     domain.StatusRejected,
			confidence: 0.6,
			hasConf:    true,
			reason:     FallbackReason,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseVerdict(tt.raw)
			assert.Equal(t, tt.status, v.Status)
			assert.InDelta(t, tt.confidence, v.Confidence, 1e-9)
			assert.Equal(t, tt.hasConf, v.HasConfidence)
			assert.Equal(t, tt.reason, v.Reason)
			assert.False(t, v.Refused)
		})
	}
}
