package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/novel-moderation/internal/audit"
	"github.com/xela07ax/novel-moderation/internal/console/handler"
	"github.com/xela07ax/novel-moderation/internal/console/service"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"github.com/xela07ax/novel-moderation/internal/infra/auth"
	"golang.org/x/crypto/bcrypt"
	"go.uber.org/zap/zaptest"
)

type operators map[string]*domain.Operator

func (o operators) GetOperatorByUsername(_ context.Context, username string) (*domain.Operator, error) {
	return o[username], nil
}

type fakeLedger struct {
	entries map[int64]*domain.LedgerEntry
}

func (f *fakeLedger) GetByID(_ context.Context, id int64) (*domain.LedgerEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeLedger) ListByStatus(_ context.Context, status domain.AuditStatus, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range f.entries {
		if e.Status == status && len(out) < limit {
			out = append(out, *e)
		}
	}
	return out, nil
}

type decision struct {
	id       int64
	status   int
	reason   string
	operator string
}

type fakeDecider struct {
	ledger    *fakeLedger
	decisions []decision
}

func (f *fakeDecider) ManualAudit(ctx context.Context, id int64, d int, reason, operator string) (*domain.LedgerEntry, error) {
	status, err := domain.ParseDecision(d)
	if err != nil {
		return nil, err
	}
	e, err := f.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Status = status
	f.decisions = append(f.decisions, decision{id, d, reason, operator})
	return e, nil
}

type fakeDashboard struct{}

func (fakeDashboard) GetDashboard(context.Context, time.Duration) (*domain.ModerationDashboard, error) {
	return &domain.ModerationDashboard{Queue: domain.QueueStats{Pending: 1, Passed: 4}}, nil
}

type fakeHistory struct{}

func (fakeHistory) ByTask(_ context.Context, taskID string) ([]audit.RunEvent, error) {
	return []audit.RunEvent{{TaskID: taskID, Outcome: audit.OutcomePending}}, nil
}

type fixture struct {
	srv     *httptest.Server
	decider *fakeDecider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hash := func(p string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.MinCost)
		require.NoError(t, err)
		return string(h)
	}
	ops := operators{
		"anna": {ID: "op-1", Username: "anna", PasswordHash: hash("secret"),
			Scopes: map[string]bool{domain.ScopeLedgerRead: true, domain.ScopeLedgerDecide: true}},
		"viewer": {ID: "op-2", Username: "viewer", PasswordHash: hash("secret"),
			Scopes: map[string]bool{domain.ScopeLedgerRead: true}},
	}

	ledger := &fakeLedger{entries: map[int64]*domain.LedgerEntry{
		1: {ID: 1, EntityKind: domain.KindChapter, EntityID: 10, Status: domain.StatusPending,
			Confidence: sql.NullFloat64{Float64: 0.62, Valid: true}, TaskID: "chapter_audit_10"},
		2: {ID: 2, EntityKind: domain.KindBook, EntityID: 3, Status: domain.StatusPassed},
	}}
	decider := &fakeDecider{ledger: ledger}

	ledgerSvc := service.NewLedgerService(ledger, decider, fakeDashboard{}, logger)
	s := NewConsoleServer(
		logger,
		auth.NewBaseValidator(&key.PublicKey),
		handler.NewAuthHandler(service.NewAuthService(ops, key, time.Hour), logger),
		handler.NewLedgerHandler(ledgerSvc),
		handler.NewDashboardHandler(ledgerSvc),
		handler.NewAuditHandler(service.NewAuditService(fakeHistory{})),
	)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, decider: decider}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) login(t *testing.T, user, password string) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/auth/token", "", `{"username":"`+user+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok domain.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, int64(3600), tok.ExpiresIn)
	return tok.AccessToken
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	assert.NotEmpty(t, f.login(t, "anna", "secret"))

	resp := f.do(t, http.MethodPost, "/auth/token", "", `{"username":"anna","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/auth/token", "", `{"username":"ghost","password":"secret"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLedgerQueue(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/ledger", "", "").StatusCode)

	token := f.login(t, "viewer", "secret")
	resp := f.do(t, http.MethodGet, "/v1/ledger", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var views []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, float64(1), views[0]["id"])
	assert.Equal(t, 0.62, views[0]["confidence"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/ledger?status=7", token, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/ledger/99", token, "").StatusCode)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/ledger/2", token, "").StatusCode)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/dashboard/stats", token, "").StatusCode)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/audit?task_id=chapter_audit_10", token, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/audit", token, "").StatusCode)
}

func TestDecide(t *testing.T) {
	f := newFixture(t)

	viewer := f.login(t, "viewer", "secret")
	resp := f.do(t, http.MethodPost, "/v1/ledger/1/decide", viewer, `{"status":1,"reason":"ok"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	token := f.login(t, "anna", "secret")
	resp = f.do(t, http.MethodPost, "/v1/ledger/1/decide", token, `{"status":2,"reason":"graphic violence"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, f.decider.decisions, 1)
	assert.Equal(t, decision{1, 2, "graphic violence", "op-1"}, f.decider.decisions[0])

	resp = f.do(t, http.MethodPost, "/v1/ledger/1/decide", token, `{"status":0,"reason":"back to queue"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/ledger/404/decide", token, `{"status":1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
