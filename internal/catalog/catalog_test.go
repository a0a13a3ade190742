package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/novel-moderation/internal/bus"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"go.uber.org/zap/zaptest"
)

const requests = "requests"

type memStore struct {
	books    map[int64]*domain.Book
	chapters map[int64]*domain.Chapter
	tasks    map[string]string // kind/id -> task id
	nextID   int64
	applied  []domain.CatalogUpdate
	applyOK  bool
	applyErr error
}

func newMemStore() *memStore {
	return &memStore{
		books:    make(map[int64]*domain.Book),
		chapters: make(map[int64]*domain.Chapter),
		tasks:    make(map[string]string),
		applyOK:  true,
	}
}

func key(kind domain.EntityKind, id int64) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

func (m *memStore) CreateBook(_ context.Context, b *domain.Book, taskID string) error {
	m.nextID++
	b.ID = m.nextID
	cp := *b
	m.books[b.ID] = &cp
	m.tasks[key(domain.KindBook, b.ID)] = taskID
	return nil
}

func (m *memStore) UpdateBook(_ context.Context, b *domain.Book, taskID string) error {
	if _, ok := m.books[b.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *b
	m.books[b.ID] = &cp
	m.tasks[key(domain.KindBook, b.ID)] = taskID
	return nil
}

func (m *memStore) GetBook(_ context.Context, id int64) (*domain.Book, error) {
	b, ok := m.books[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) CreateChapter(_ context.Context, c *domain.Chapter, taskID string) error {
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.chapters[c.ID] = &cp
	m.tasks[key(domain.KindChapter, c.ID)] = taskID
	return nil
}

func (m *memStore) UpdateChapter(_ context.Context, c *domain.Chapter, taskID string) error {
	if _, ok := m.chapters[c.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *c
	m.chapters[c.ID] = &cp
	m.tasks[key(domain.KindChapter, c.ID)] = taskID
	return nil
}

func (m *memStore) GetChapter(_ context.Context, id int64) (*domain.Chapter, error) {
	c, ok := m.chapters[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	cp.BookTitle = m.books[c.BookID].Title
	return &cp, nil
}

func (m *memStore) ApplyAudit(_ context.Context, u domain.CatalogUpdate) (bool, error) {
	if m.applyErr != nil {
		return false, m.applyErr
	}
	m.applied = append(m.applied, u)
	return m.applyOK, nil
}

type failingPublisher struct{}

func (failingPublisher) PublishJSON(context.Context, string, any) error {
	return errors.New("redis unavailable")
}

func published(t *testing.T, b *bus.MemoryBroker) []domain.AuditRequest {
	t.Helper()
	var out []domain.AuditRequest
	for _, m := range b.Published(requests) {
		var req domain.AuditRequest
		require.NoError(t, json.Unmarshal(m.Payload, &req))
		out = append(out, req)
	}
	return out
}

func TestSaveBookPersistsThenPublishes(t *testing.T) {
	store := newMemStore()
	broker := bus.NewMemoryBroker(1)
	svc := NewService(store, bus.NewPublisher(broker, 1), requests, zaptest.NewLogger(t))

	sub, err := svc.SaveBook(context.Background(), &domain.Book{AuthorID: 3, Title: "Road", Description: ""})
	require.NoError(t, err)
	assert.True(t, sub.Queued)
	assert.True(t, strings.HasPrefix(sub.TaskID, "book_audit_1_"))
	assert.Equal(t, sub.TaskID, store.tasks[key(domain.KindBook, 1)])

	reqs := published(t, broker)
	require.Len(t, reqs, 1)
	assert.Equal(t, sub.TaskID, reqs[0].TaskID)
	assert.Equal(t, domain.KindBook, reqs[0].EntityKind)
	assert.Equal(t, int64(1), reqs[0].EntityID)
	assert.NoError(t, reqs[0].Validate())
}

func TestSaveChapterCarriesBookContext(t *testing.T) {
	store := newMemStore()
	broker := bus.NewMemoryBroker(1)
	svc := NewService(store, bus.NewPublisher(broker, 1), requests, zaptest.NewLogger(t))

	_, err := svc.SaveBook(context.Background(), &domain.Book{Title: "Saga"})
	require.NoError(t, err)

	ch := &domain.Chapter{BookID: 1, Sequence: 7, Title: "Storm", Content: "It rained."}
	sub, err := svc.SaveChapter(context.Background(), ch)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sub.TaskID, "chapter_audit_2_"))

	reqs := published(t, broker)
	require.Len(t, reqs, 2)
	got := reqs[1]
	assert.Equal(t, domain.KindChapter, got.EntityKind)
	assert.Equal(t, int64(1), got.BookID)
	assert.Equal(t, "Saga", got.BookTitle)
	assert.Equal(t, 7, got.ChapterSequence)
	assert.Equal(t, "It rained.", got.Content)

	_, err = svc.SaveChapter(context.Background(), &domain.Chapter{BookID: 99, Sequence: 1, Title: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.SaveChapter(context.Background(), &domain.Chapter{BookID: 1, Title: "no sequence"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestPublishFailureKeepsPersistedState(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, failingPublisher{}, requests, zaptest.NewLogger(t))

	sub, err := svc.SaveBook(context.Background(), &domain.Book{Title: "Road"})
	require.NoError(t, err)
	assert.False(t, sub.Queued)
	assert.Contains(t, store.books, int64(1))
}

type recordingIndexer struct{ books []int64 }

func (r *recordingIndexer) RefreshBook(_ context.Context, id int64) error {
	r.books = append(r.books, id)
	return nil
}

func resultMessage(t *testing.T, res domain.AuditResult) bus.Message {
	t.Helper()
	payload, err := json.Marshal(res)
	require.NoError(t, err)
	return bus.Message{ID: "1-0", Payload: payload, Deliveries: 1}
}

func TestResultConsumer(t *testing.T) {
	errMsg := "classifier exploded"
	cases := []struct {
		name       string
		res        domain.AuditResult
		applyOK    bool
		wantApply  bool
		wantIndex  []int64
		wantMetric string
	}{
		{
			name:       "passed chapter refreshes its book",
			res:        domain.AuditResult{TaskID: "t", EntityKind: domain.KindChapter, EntityID: 5, BookID: 2, Status: domain.StatusPassed, Confidence: 0.9, Success: true},
			applyOK:    true,
			wantApply:  true,
			wantIndex:  []int64{2},
			wantMetric: "applied",
		},
		{
			name:       "rejected book",
			res:        domain.AuditResult{TaskID: "t", EntityKind: domain.KindBook, EntityID: 3, Status: domain.StatusRejected, Reason: strings.Repeat("r", 900), Success: true},
			applyOK:    true,
			wantApply:  true,
			wantMetric: "applied",
		},
		{
			name:       "stale result",
			res:        domain.AuditResult{TaskID: "old", EntityKind: domain.KindBook, EntityID: 3, Status: domain.StatusPassed, Success: true},
			applyOK:    false,
			wantApply:  true,
			wantMetric: "stale",
		},
		{
			name:       "pending waits for a human",
			res:        domain.AuditResult{TaskID: "t", EntityKind: domain.KindBook, EntityID: 3, Status: domain.StatusPending, Success: true},
			wantMetric: "pending",
		},
		{
			name:       "worker failure",
			res:        domain.AuditResult{TaskID: "t", EntityKind: domain.KindBook, EntityID: 42, Success: false, ErrorMessage: &errMsg},
			wantMetric: "failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			store.applyOK = tc.applyOK
			idx := &recordingIndexer{}
			metrics := NewConsumerMetrics(nil)
			c := NewResultConsumer(store, idx, 500, metrics, zaptest.NewLogger(t))

			require.NoError(t, c.Handle(context.Background(), resultMessage(t, tc.res)))

			if tc.wantApply {
				require.Len(t, store.applied, 1)
				u := store.applied[0]
				assert.Equal(t, tc.res.TaskID, u.TaskID)
				assert.Equal(t, tc.res.Status, u.Status)
				assert.LessOrEqual(t, len([]rune(u.Reason)), 500)
			} else {
				assert.Empty(t, store.applied)
			}
			assert.Equal(t, tc.wantIndex, idx.books)
			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Results.WithLabelValues(tc.wantMetric)))
		})
	}
}

func TestResultConsumerRetriesOnStorageError(t *testing.T) {
	store := newMemStore()
	store.applyErr = errors.New("db down")
	c := NewResultConsumer(store, nil, 500, nil, zaptest.NewLogger(t))

	res := domain.AuditResult{TaskID: "t", EntityKind: domain.KindBook, EntityID: 1, Status: domain.StatusPassed, Success: true}
	assert.Error(t, c.Handle(context.Background(), resultMessage(t, res)))

	assert.NoError(t, c.Handle(context.Background(), bus.Message{Payload: []byte("garbage")}), "poison messages are acked")
}

func TestHandler(t *testing.T) {
	store := newMemStore()
	broker := bus.NewMemoryBroker(1)
	srv := httptest.NewServer(NewHandler(NewService(store, bus.NewPublisher(broker, 1), requests, zaptest.NewLogger(t))).Routes())
	defer srv.Close()

	post := func(method, path, body string) *http.Response {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := post(http.MethodPost, "/v1/books", `{"authorId": 1, "title": "Road", "description": "a trip"}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var sub Submission
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	assert.True(t, sub.Queued)
	assert.NotEmpty(t, sub.TaskID)

	resp2 := post(http.MethodPost, "/v1/books/1/chapters", `{"sequence": 1, "title": "Start", "content": "Once."}`)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp2.StatusCode)

	resp3 := post(http.MethodPut, "/v1/books/77", `{"title": "Ghost"}`)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)

	resp4 := post(http.MethodPost, "/v1/books", `{"title": ""}`)
	defer resp4.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp4.StatusCode)

	resp5 := post(http.MethodPut, "/v1/chapters/abc", `{}`)
	defer resp5.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp5.StatusCode)

	assert.Len(t, broker.Published(requests), 2)
}
