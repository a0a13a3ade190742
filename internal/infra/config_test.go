package infra

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Moderation.MaxSegmentLength)
	assert.Equal(t, 200, cfg.Moderation.BoundaryWindow)
	assert.Equal(t, 0.8, cfg.Moderation.ConfidenceThreshold)
	assert.Equal(t, 500, cfg.Moderation.CatalogReasonLimit)
	assert.Equal(t, int64(5), cfg.Bus.MaxDeliveries)
	assert.Equal(t, 30*time.Second, cfg.Bus.ClaimAfter)
	assert.Equal(t, "genai", cfg.Classifier.Provider)
	assert.Equal(t, ":8000", cfg.Console.Addr())
}

func TestDecodeRejectsBadThreshold(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("moderation.confidence_threshold", 1.5)
	_, err := decode(v)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MODERATION_MAX_SEGMENT_LENGTH", "1200")
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(replacer())
	setDefaults(v)
	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.Moderation.MaxSegmentLength)
}

func TestNewLogger(t *testing.T) {
	logger, level, err := NewLogger(LoggerConfig{Level: "warn", Format: "json"}, "test")
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, "warn", level.String())

	_, _, err = NewLogger(LoggerConfig{Level: "loud"}, "test")
	assert.Error(t, err)
}

func TestDeadLetterStream(t *testing.T) {
	assert.Equal(t, "novel:audit:requests:dlq", DeadLetterStream(StreamAuditRequests))
}
