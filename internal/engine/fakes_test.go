package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/novel-moderation/internal/classifier"
	"github.com/xela07ax/novel-moderation/internal/domain"
)

type fakeLedger struct {
	mu         sync.Mutex
	rows       map[string]*domain.LedgerEntry
	nextID     int64
	submitErr  error
	resolveErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string]*domain.LedgerEntry)}
}

func ledgerKey(kind domain.EntityKind, id int64) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

func (l *fakeLedger) Submit(_ context.Context, e *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.submitErr != nil {
		return nil, l.submitErr
	}
	key := ledgerKey(e.EntityKind, e.EntityID)
	row, ok := l.rows[key]
	if !ok {
		l.nextID++
		row = &domain.LedgerEntry{ID: l.nextID, EntityKind: e.EntityKind, EntityID: e.EntityID, CreatedAt: e.CreatedAt}
		l.rows[key] = row
	} else if e.SubmittedAt.Before(row.SubmittedAt) {
		return nil, domain.ErrSuperseded
	}
	row.ContentSnapshot = e.ContentSnapshot
	row.Status = domain.StatusPending
	row.Confidence.Valid = false
	row.Reason.Valid = false
	row.TaskID = e.TaskID
	row.SubmittedAt = e.SubmittedAt
	row.Version++
	row.UpdatedAt = e.UpdatedAt
	cp := *row
	return &cp, nil
}

func (l *fakeLedger) Resolve(_ context.Context, e *domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resolveErr != nil {
		return l.resolveErr
	}
	row, ok := l.rows[ledgerKey(e.EntityKind, e.EntityID)]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Version != 0 && row.Version != e.Version {
		return domain.ErrStaleSubmission
	}
	row.Status, row.Confidence, row.Reason, row.UpdatedAt = e.Status, e.Confidence, e.Reason, e.UpdatedAt
	return nil
}

func (l *fakeLedger) GetByID(_ context.Context, id int64) (*domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range l.rows {
		if row.ID == id {
			cp := *row
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (l *fakeLedger) Override(_ context.Context, e *domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[ledgerKey(e.EntityKind, e.EntityID)]
	if !ok {
		return domain.ErrNotFound
	}
	row.Status, row.Reason, row.UpdatedAt = e.Status, e.Reason, e.UpdatedAt
	return nil
}

func (l *fakeLedger) get(kind domain.EntityKind, id int64) *domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[ledgerKey(kind, id)]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}

type catalogRow struct {
	Status domain.AuditStatus
	Reason string
	TaskID string
}

type chapterRow struct {
	ID       int64
	BookID   int64
	Sequence int
	Title    string
}

type fakeCatalog struct {
	mu       sync.Mutex
	rows     map[string]*catalogRow
	chapters []chapterRow
	latest   map[int64]*domain.ChapterRef
	applyErr error
	writes   int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{rows: make(map[string]*catalogRow), latest: make(map[int64]*domain.ChapterRef)}
}

func (c *fakeCatalog) ApplyAudit(_ context.Context, u domain.CatalogUpdate) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applyErr != nil {
		return false, c.applyErr
	}
	key := ledgerKey(u.Kind, u.EntityID)
	row, ok := c.rows[key]
	if !ok {
		row = &catalogRow{TaskID: u.TaskID}
		c.rows[key] = row
	}
	if u.TaskID != "" && row.TaskID != "" && row.TaskID != u.TaskID {
		return false, nil
	}
	row.Status, row.Reason = u.Status, u.Reason
	if u.NewTaskID != "" {
		row.TaskID = u.NewTaskID
	}
	c.writes++
	return true, nil
}

func (c *fakeCatalog) ChapterBookID(_ context.Context, chapterID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.chapters {
		if ch.ID == chapterID {
			return ch.BookID, nil
		}
	}
	return 0, domain.ErrNotFound
}

func (c *fakeCatalog) LatestPassedChapter(_ context.Context, bookID int64) (*domain.ChapterRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var passed []chapterRow
	for _, ch := range c.chapters {
		row, ok := c.rows[ledgerKey(domain.KindChapter, ch.ID)]
		if ch.BookID == bookID && ok && row.Status == domain.StatusPassed {
			passed = append(passed, ch)
		}
	}
	if len(passed) == 0 {
		return nil, nil
	}
	sort.Slice(passed, func(i, j int) bool { return passed[i].Sequence > passed[j].Sequence })
	return &domain.ChapterRef{ID: passed[0].ID, Sequence: passed[0].Sequence, Title: passed[0].Title}, nil
}

func (c *fakeCatalog) SetLatestChapter(_ context.Context, bookID int64, ref *domain.ChapterRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[bookID] = ref
	return nil
}

func (c *fakeCatalog) row(kind domain.EntityKind, id int64) *catalogRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[ledgerKey(kind, id)]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}

type fakeIndexer struct {
	mu    sync.Mutex
	books []int64
	err   error
}

func (i *fakeIndexer) RefreshBook(_ context.Context, bookID int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.books = append(i.books, bookID)
	return i.err
}

// fakeClassifier - функция на каждый вызов плюс журнал вызовов.
type fakeClassifier struct {
	mu       sync.Mutex
	calls    []classifier.Input
	classify func(in classifier.Input) domain.Verdict
}

func (f *fakeClassifier) Classify(_ context.Context, in classifier.Input) domain.Verdict {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	return f.classify(in)
}

func (f *fakeClassifier) ordinals() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Ordinal)
	}
	return out
}

func verdict(status domain.AuditStatus, confidence float64, reason string) domain.Verdict {
	return domain.Verdict{Status: status, Confidence: confidence, HasConfidence: true, Reason: reason}
}

func always(v domain.Verdict) func(classifier.Input) domain.Verdict {
	return func(classifier.Input) domain.Verdict { return v }
}

var errStorage = errors.New("connection refused")

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)
