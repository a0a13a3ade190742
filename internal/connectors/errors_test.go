package connectors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsContentRefusal(t *testing.T) {
	assert.False(t, IsContentRefusal(nil, nil))
	assert.True(t, IsContentRefusal(&ContentRefusalError{Marker: "SAFETY"}, nil))
	assert.True(t, IsContentRefusal(fmt.Errorf("wrapped: %w", &ContentRefusalError{Marker: "x"}), nil))
	assert.True(t, IsContentRefusal(errors.New("400 DataInspectionFailed: Input data may contain inappropriate content."), nil))
	assert.False(t, IsContentRefusal(errors.New("dial tcp: i/o timeout"), nil))
	assert.True(t, IsContentRefusal(errors.New("blocked by moderation"), []string{"moderation"}))
}

func TestThrottleErrorUnwrap(t *testing.T) {
	cause := errors.New("quota")
	err := fmt.Errorf("call: %w", &ThrottleError{RetryAfter: time.Second, Cause: cause})
	var tErr *ThrottleError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, time.Second, tErr.RetryAfter)
	assert.ErrorIs(t, err, cause)
}

func TestMockModel(t *testing.T) {
	m := &MockModel{Banned: []string{"gore"}, Latency: time.Millisecond}
	ctx := context.Background()

	out, err := m.Generate(ctx, "", "a calm story")
	require.NoError(t, err)
	assert.Contains(t, out, `"auditStatus": 1`)

	out, err = m.Generate(ctx, "", "so much GORE here")
	require.NoError(t, err)
	assert.Contains(t, out, `"auditStatus": 2`)

	_, err = m.Generate(ctx, "", "please refuse")
	assert.True(t, IsContentRefusal(err, nil))

	_, err = m.Generate(ctx, "", "unstable backend")
	require.Error(t, err)
	assert.False(t, IsContentRefusal(err, nil))
}

func TestMockModelHonoursContext(t *testing.T) {
	m := &MockModel{Latency: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Generate(ctx, "", "x")
	assert.ErrorIs(t, err, context.Canceled)
}
