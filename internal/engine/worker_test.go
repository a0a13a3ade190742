package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/novel-moderation/internal/bus"
	"github.com/xela07ax/novel-moderation/internal/classifier"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const resultStream = "results"

func message(t *testing.T, req domain.AuditRequest) bus.Message {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	return bus.Message{ID: "1-0", Payload: payload, Deliveries: 1}
}

func results(t *testing.T, b *bus.MemoryBroker) []domain.AuditResult {
	t.Helper()
	var out []domain.AuditResult
	for _, m := range b.Published(resultStream) {
		var r domain.AuditResult
		require.NoError(t, json.Unmarshal(m.Payload, &r))
		out = append(out, r)
	}
	return out
}

func TestNoLostRequest(t *testing.T) {
	h := newHarness(t, func(classifier.Input) domain.Verdict { panic("classifier unreachable") })
	broker := bus.NewMemoryBroker(3)
	metrics := NewMetrics(nil)
	w := NewWorker(h.orch, bus.NewPublisher(broker, 1), resultStream, metrics, zaptest.NewLogger(t))

	req := bookRequest(42, "anything")
	require.NoError(t, w.Handle(context.Background(), message(t, req)))

	got := results(t, broker)
	require.Len(t, got, 1)
	assert.False(t, got[0].Success)
	assert.Equal(t, int64(42), got[0].EntityID)
	assert.Equal(t, req.TaskID, got[0].TaskID)
	require.NotNil(t, got[0].ErrorMessage)
	assert.Contains(t, *got[0].ErrorMessage, "classifier unreachable")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ResultsEmitted.WithLabelValues("false")))
}

type downModel struct{}

func (downModel) Generate(context.Context, string, string) (string, error) {
	return "", errors.New("dial tcp: connection refused")
}

// Недоступная модель - это вердикт шлюза (PENDING), а не сбой обработки запроса.
func TestModelOutageYieldsPendingResult(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ledger, catalog := newFakeLedger(), newFakeCatalog()
	orch := NewOrchestrator(OrchestratorConfig{}, ledger, catalog, nil,
		classifier.NewGateway(downModel{}, nil, nil, logger), nil, nil, logger)
	broker := bus.NewMemoryBroker(3)
	w := NewWorker(orch, bus.NewPublisher(broker, 1), resultStream, NewMetrics(nil), logger)

	require.NoError(t, w.Handle(context.Background(), message(t, bookRequest(42, "anything"))))

	got := results(t, broker)
	require.Len(t, got, 1)
	assert.True(t, got[0].Success)
	assert.Nil(t, got[0].ErrorMessage)
	assert.Equal(t, domain.StatusPending, got[0].Status)
	assert.Contains(t, got[0].Reason, "classifier call failed")
	assert.Equal(t, domain.StatusPending, ledger.get(domain.KindBook, 42).Status)
	assert.Nil(t, catalog.row(domain.KindBook, 42))
}

type auditorFunc func(ctx context.Context, req domain.AuditRequest) (domain.AuditResult, error)

func (f auditorFunc) Audit(ctx context.Context, req domain.AuditRequest) (domain.AuditResult, error) {
	return f(ctx, req)
}

func TestWorkerBoundary(t *testing.T) {
	cases := []struct {
		name    string
		auditor auditorFunc
		payload []byte
		wantMsg string
	}{
		{
			name:    "auditor panics",
			auditor: func(context.Context, domain.AuditRequest) (domain.AuditResult, error) { panic("nil map") },
			wantMsg: "internal error: nil map",
		},
		{
			name: "auditor error",
			auditor: func(context.Context, domain.AuditRequest) (domain.AuditResult, error) {
				return domain.AuditResult{}, errors.New("invalid audit request")
			},
			wantMsg: "invalid audit request",
		},
		{
			name:    "garbage payload",
			auditor: func(context.Context, domain.AuditRequest) (domain.AuditResult, error) { panic("must not be called") },
			payload: []byte("{not json"),
			wantMsg: "decode audit request",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			broker := bus.NewMemoryBroker(3)
			w := NewWorker(tc.auditor, bus.NewPublisher(broker, 1), resultStream, nil, zaptest.NewLogger(t))

			msg := message(t, bookRequest(42, "x"))
			if tc.payload != nil {
				msg.Payload = tc.payload
			}
			require.NoError(t, w.Handle(context.Background(), msg))

			got := results(t, broker)
			require.Len(t, got, 1)
			assert.False(t, got[0].Success)
			assert.Equal(t, domain.StatusPending, got[0].Status)
			require.NotNil(t, got[0].ErrorMessage)
			assert.Contains(t, *got[0].ErrorMessage, tc.wantMsg)
		})
	}
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) PublishJSON(context.Context, string, any) error {
	p.calls++
	return errors.New("redis down")
}

func TestWorkerAsksForRedeliveryWhenResultIsNotPublished(t *testing.T) {
	ok := auditorFunc(func(_ context.Context, req domain.AuditRequest) (domain.AuditResult, error) {
		return domain.AuditResult{TaskID: req.TaskID, EntityID: req.EntityID, Success: true}, nil
	})
	pub := &failingPublisher{}
	w := NewWorker(ok, pub, resultStream, nil, zaptest.NewLogger(t))

	err := w.Handle(context.Background(), message(t, bookRequest(1, "x")))
	assert.Error(t, err)
	assert.Equal(t, 1, pub.calls)
}

func TestWorkerRunEndToEnd(t *testing.T) {
	h := newHarness(t, always(verdict(domain.StatusPassed, 0.93, "clean")))
	broker := bus.NewMemoryBroker(3)
	w := NewWorker(h.orch, bus.NewPublisher(broker, 1), resultStream, nil, zaptest.NewLogger(t))

	req := bookRequest(77, "gentle")
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, broker.Publish(context.Background(), "requests", payload))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, broker, "requests", "workers") }()

	require.Eventually(t, func() bool { return len(broker.Published(resultStream)) == 1 }, timeout, tick)
	cancel()
	require.NoError(t, <-done)

	got := results(t, broker)
	assert.True(t, got[0].Success)
	assert.Equal(t, domain.StatusPassed, got[0].Status)
	assert.Equal(t, 0.93, got[0].Confidence)
}
