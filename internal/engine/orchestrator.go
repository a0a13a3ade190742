package engine

/*
Orchestrator - конечный автомат одного прогона модерации:

 1. Submit: леджер (kind, id) сбрасывается в PENDING, версия растет.
    Недоступный леджер не блокирует модерацию: прогон идет на записи в памяти.
 2. Classify: книга и короткая глава - один вызов модели; длинная глава режется
    на сегменты, которые проверяются последовательно. Отказ модели на любом сегменте
    сразу дает REJECTED 1.0, остальные сегменты в модель не уходят.
 3. Reconcile: PASSED >= порога -> леджер и каталог PASSED + синхронизация;
    PASSED ниже порога -> леджер PENDING (human review), каталог не трогаем;
    REJECTED -> леджер и каталог REJECTED (причина с пометкой, если уверенность ниже порога).

Запись в леджер условна по версии: если сущность успели переотправить, результат
устаревшего прогона не применяется.
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/xela07ax/novel-moderation/internal/audit"
	"github.com/xela07ax/novel-moderation/internal/classifier"
	"github.com/xela07ax/novel-moderation/internal/domain"
	"github.com/xela07ax/novel-moderation/internal/segment"
	"go.uber.org/zap"
)

const (
	// StaleReason - причина в результате прогона, который обогнала новая отправка.
	StaleReason       = "superseded by a newer submission"
	humanReviewSuffix = " (needs human review)"
	manualPrefix      = "[manual:%s] "
)

// Ledger - хранилище последнего вердикта по сущности.
type Ledger interface {
	// Submit сбрасывает запись в PENDING (или создает ее) и возвращает новую версию.
	// Если записана более поздняя отправка -> domain.ErrSuperseded.
	Submit(ctx context.Context, e *domain.LedgerEntry) (*domain.LedgerEntry, error)
	// Resolve пишет итог прогона. Версия 0 - запись без проверки (деградированный режим).
	// Несовпадение версии -> domain.ErrStaleSubmission.
	Resolve(ctx context.Context, e *domain.LedgerEntry) error
	GetByID(ctx context.Context, id int64) (*domain.LedgerEntry, error)
	// Override - безусловная запись решения оператора.
	Override(ctx context.Context, e *domain.LedgerEntry) error
}

// CatalogStore - видимые поля аудита у книг и глав.
type CatalogStore interface {
	// ApplyAudit возвращает false, если у сущности уже другой task id (ее переотправили).
	ApplyAudit(ctx context.Context, u domain.CatalogUpdate) (bool, error)
	ChapterBookID(ctx context.Context, chapterID int64) (int64, error)
	LatestPassedChapter(ctx context.Context, bookID int64) (*domain.ChapterRef, error)
	SetLatestChapter(ctx context.Context, bookID int64, ref *domain.ChapterRef) error
}

// Indexer - триггер переиндексации поиска (fire-and-forget).
type Indexer interface {
	RefreshBook(ctx context.Context, bookID int64) error
}

type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) domain.Verdict
}

type OrchestratorConfig struct {
	MaxSegmentLength    int
	BoundaryWindow      int
	ConfidenceThreshold float64
	CatalogReasonLimit  int
	MergedReasonLimit   int
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.MaxSegmentLength <= 0 {
		c.MaxSegmentLength = 5000
	}
	if c.BoundaryWindow <= 0 {
		c.BoundaryWindow = segment.DefaultBoundaryWindow
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.8
	}
	if c.CatalogReasonLimit <= 0 {
		c.CatalogReasonLimit = 500
	}
	if c.MergedReasonLimit <= 0 {
		c.MergedReasonLimit = segment.DefaultReasonLimit
	}
	return c
}

type Orchestrator struct {
	cfg        OrchestratorConfig
	ledger     Ledger
	catalog    CatalogStore
	indexer    Indexer
	classifier Classifier
	merger     *segment.Merger
	journal    audit.Recorder
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	ledger Ledger,
	catalog CatalogStore,
	indexer Indexer,
	cls Classifier,
	journal audit.Recorder,
	metrics *Metrics,
	logger *zap.Logger,
) *Orchestrator {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if journal == nil {
		journal = nopRecorder{}
	}
	return &Orchestrator{
		cfg:        cfg,
		ledger:     ledger,
		catalog:    catalog,
		indexer:    indexer,
		classifier: cls,
		merger:     segment.NewMerger(cfg.MergedReasonLimit),
		journal:    journal,
		metrics:    metrics,
		logger:     logger.Named("orchestrator"),
		now:        time.Now,
	}
}

type nopRecorder struct{}

func (nopRecorder) Log(audit.RunEvent) {}

// run - состояние одного прогона
type run struct {
	req      domain.AuditRequest
	fields   domain.EntityFields
	entry    *domain.LedgerEntry
	verdict  domain.Verdict
	segments int
	trace    []domain.SegmentVerdict // вердикты по сегментам, как их вернул классификатор
	started  time.Time
}

// Audit проводит полный прогон и возвращает результат для шины.
// Ошибки хранилищ логируются и не прерывают прогон; ошибка возвращается только
// для невалидного запроса или сорванной классификации - тогда воркер шлет success=false.
func (o *Orchestrator) Audit(ctx context.Context, req domain.AuditRequest) (domain.AuditResult, error) {
	if err := req.Validate(); err != nil {
		return domain.AuditResult{}, fmt.Errorf("invalid audit request %q: %w", req.TaskID, err)
	}

	r := &run{req: req, fields: req.Fields(), started: o.now()}
	log := o.logger.With(
		zap.String("task_id", req.TaskID),
		zap.String("kind", string(req.EntityKind)),
		zap.Int64("entity_id", req.EntityID),
	)

	// 1. Леджер -> PENDING
	var superseded bool
	r.entry, superseded = o.submit(ctx, r, log)
	if superseded {
		return o.supersede(r, log), nil
	}

	// 2. Классификация. Паника модели не должна уронить воркер: фиксируем и отдаем наверх как ошибку.
	if err := o.classify(ctx, r); err != nil {
		log.Error("classification aborted", zap.Error(err))
		o.record(r, audit.OutcomeFailed, err)
		o.metrics.Runs.WithLabelValues(string(req.EntityKind), audit.OutcomeFailed).Inc()
		return domain.AuditResult{}, err
	}

	// 3. Сверка
	status, reason, outcome := o.reconcile(ctx, r, log)

	o.metrics.Runs.WithLabelValues(string(req.EntityKind), outcome).Inc()
	o.metrics.RunDuration.WithLabelValues(string(req.EntityKind)).Observe(o.now().Sub(r.started).Seconds())
	o.metrics.SegmentsPerRun.Observe(float64(r.segments))
	o.record(r, outcome, nil)

	log.Info("audit run finished",
		zap.Int("segments", r.segments),
		zap.String("verdict", r.verdict.Status.String()),
		zap.String("status", status.String()),
		zap.Float64("confidence", r.verdict.Confidence),
		zap.String("outcome", outcome),
	)

	return domain.AuditResult{
		TaskID:     req.TaskID,
		EntityKind: req.EntityKind,
		EntityID:   req.EntityID,
		BookID:     req.BookID,
		Status:     status,
		Confidence: r.verdict.Confidence,
		Reason:     reason,
		Success:    true,
	}, nil
}

func (o *Orchestrator) submit(ctx context.Context, r *run, log *zap.Logger) (*domain.LedgerEntry, bool) {
	now := o.now()
	pending := &domain.LedgerEntry{
		EntityKind:      r.req.EntityKind,
		EntityID:        r.req.EntityID,
		ContentSnapshot: r.fields.Snapshot(),
		Status:          domain.StatusPending,
		TaskID:          r.req.TaskID,
		SubmittedAt:     r.req.SubmittedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if pending.SubmittedAt.IsZero() {
		pending.SubmittedAt = now
	}

	saved, err := o.ledger.Submit(ctx, pending)
	if errors.Is(err, domain.ErrSuperseded) {
		// леджер доступен, просто держит более позднюю отправку
		pending.Persisted = true
		return pending, true
	}
	if err != nil {
		// Graceful degradation: модерация не ждет леджер
		o.metrics.DegradedLedger.Inc()
		log.Warn("ledger unavailable, continuing with in-memory entry", zap.Error(err))
		pending.Persisted = false
		return pending, false
	}
	saved.Persisted = true
	return saved, false
}

// supersede - ответ на запрос, который обогнала более поздняя отправка (повторная доставка старого сообщения).
// Модель не вызывается, леджер и каталог не трогаются.
func (o *Orchestrator) supersede(r *run, log *zap.Logger) domain.AuditResult {
	o.metrics.StaleReconciles.Inc()
	o.metrics.Runs.WithLabelValues(string(r.req.EntityKind), audit.OutcomeStale).Inc()
	o.record(r, audit.OutcomeStale, nil)
	log.Info("newer submission already recorded, skipping classification",
		zap.Time("submitted_at", r.entry.SubmittedAt))

	return domain.AuditResult{
		TaskID:     r.req.TaskID,
		EntityKind: r.req.EntityKind,
		EntityID:   r.req.EntityID,
		BookID:     r.req.BookID,
		Status:     domain.StatusPending,
		Reason:     StaleReason,
		Success:    true,
	}
}

func (o *Orchestrator) classify(ctx context.Context, r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("classifier panic: %v", p)
		}
	}()

	text := r.fields.Text()
	if r.fields.Kind != domain.KindChapter || utf8.RuneCountInString(text) <= o.cfg.MaxSegmentLength {
		r.segments = 1
		v := o.classifier.Classify(ctx, classifier.Input{Fields: r.fields, Text: text, Ordinal: 1, Total: 1})
		v.Confidence = segment.RoundConfidence(v.Confidence)
		r.verdict = v
		r.trace = append(r.trace, segmentVerdict(1, v))
		return nil
	}

	segs := segment.Segments(text, o.cfg.MaxSegmentLength, o.cfg.BoundaryWindow)
	verdicts := make([]domain.SegmentVerdict, 0, len(segs))
	for _, s := range segs {
		r.segments++
		v := o.classifier.Classify(ctx, classifier.Input{Fields: r.fields, Text: s.Text, Ordinal: s.Ordinal, Total: s.Total})
		sv := segmentVerdict(s.Ordinal, v)
		r.trace = append(r.trace, sv)
		if v.Refused {
			// Отказ модели - окончательный REJECTED, остальные сегменты не проверяем
			r.verdict = domain.Verdict{
				Status:        domain.StatusRejected,
				Confidence:    1.0,
				HasConfidence: true,
				Refused:       true,
				Reason:        fmt.Sprintf("segment %d: %s", s.Ordinal, v.Reason),
			}
			return nil
		}
		verdicts = append(verdicts, sv)
	}
	r.verdict = o.merger.Merge(verdicts, len(segs))
	return nil
}

func segmentVerdict(ordinal int, v domain.Verdict) domain.SegmentVerdict {
	sv := domain.SegmentVerdict{Ordinal: ordinal, Status: v.Status, Reason: v.Reason}
	if v.HasConfidence {
		c := v.Confidence
		sv.Confidence = &c
	}
	return sv
}

// route - куда попадает вердикт: PASSED только выше порога, REJECTED всегда, остальное ждет человека.
func (o *Orchestrator) route(v domain.Verdict) domain.AuditStatus {
	switch {
	case v.Status == domain.StatusPassed && v.Confidence >= o.cfg.ConfidenceThreshold:
		return domain.StatusPassed
	case v.Status == domain.StatusRejected:
		return domain.StatusRejected
	}
	return domain.StatusPending
}

// reconcile применяет вердикт к леджеру и каталогу. Возвращает статус и причину для результата.
func (o *Orchestrator) reconcile(ctx context.Context, r *run, log *zap.Logger) (domain.AuditStatus, string, string) {
	v := r.verdict
	confident := v.Confidence >= o.cfg.ConfidenceThreshold
	next := o.route(v)

	r.entry.Status = next
	r.entry.Confidence = sql.NullFloat64{Float64: v.Confidence, Valid: true}
	r.entry.Reason = sql.NullString{String: v.Reason, Valid: v.Reason != ""}
	r.entry.UpdatedAt = o.now()

	if err := o.ledger.Resolve(ctx, r.entry); err != nil {
		if errors.Is(err, domain.ErrStaleSubmission) {
			o.metrics.StaleReconciles.Inc()
			log.Info("entity was resubmitted, skipping stale reconciliation", zap.Int64("version", r.entry.Version))
			return domain.StatusPending, StaleReason, audit.OutcomeStale
		}
		log.Error("ledger reconcile failed", zap.Error(err))
	}

	switch next {
	case domain.StatusPassed:
		applied := o.applyCatalog(ctx, log, domain.CatalogUpdate{
			Kind:     r.req.EntityKind,
			EntityID: r.req.EntityID,
			TaskID:   r.req.TaskID,
			Status:   domain.StatusPassed,
		})
		if applied {
			o.sync(ctx, log, r.req.EntityKind, r.req.EntityID, r.req.BookID, domain.StatusPassed)
		}
		return next, v.Reason, audit.OutcomePassed

	case domain.StatusRejected:
		reason := o.catalogReason(v.Reason, !confident)
		applied := o.applyCatalog(ctx, log, domain.CatalogUpdate{
			Kind:     r.req.EntityKind,
			EntityID: r.req.EntityID,
			TaskID:   r.req.TaskID,
			Status:   domain.StatusRejected,
			Reason:   reason,
		})
		if applied {
			o.sync(ctx, log, r.req.EntityKind, r.req.EntityID, r.req.BookID, domain.StatusRejected)
		}
		return next, reason, audit.OutcomeRejected
	}

	// PASSED ниже порога или неопределенный вердикт: только human review, каталог остается PENDING
	log.Info("verdict queued for human review",
		zap.String("verdict", v.Status.String()),
		zap.Float64("confidence", v.Confidence))
	return domain.StatusPending, v.Reason, audit.OutcomePending
}

func (o *Orchestrator) applyCatalog(ctx context.Context, log *zap.Logger, u domain.CatalogUpdate) bool {
	applied, err := o.catalog.ApplyAudit(ctx, u)
	if err != nil {
		log.Error("catalog audit update failed", zap.Error(err))
		return false
	}
	if !applied {
		o.metrics.StaleReconciles.Inc()
		log.Info("catalog entity carries a newer task, audit fields left untouched")
	}
	return applied
}

// catalogReason укладывает причину в лимит поля каталога вместе с пометкой для человека.
func (o *Orchestrator) catalogReason(reason string, needsReview bool) string {
	if !needsReview {
		return segment.Truncate(reason, o.cfg.CatalogReasonLimit)
	}
	budget := o.cfg.CatalogReasonLimit - utf8.RuneCountInString(humanReviewSuffix)
	return segment.Truncate(reason, budget) + humanReviewSuffix
}

// sync - переиндексация и пересчет "последней главы". Ошибки не критичны.
func (o *Orchestrator) sync(ctx context.Context, log *zap.Logger, kind domain.EntityKind, entityID, bookID int64, status domain.AuditStatus) {
	if kind == domain.KindBook {
		if status == domain.StatusPassed {
			o.refresh(ctx, log, entityID)
		}
		return
	}

	if bookID == 0 {
		id, err := o.catalog.ChapterBookID(ctx, entityID)
		if err != nil {
			log.Error("cannot resolve chapter book", zap.Error(err))
			return
		}
		bookID = id
	}

	// Отклоненная глава тоже могла быть "последней": пересчитываем в обоих случаях
	latest, err := o.catalog.LatestPassedChapter(ctx, bookID)
	if err != nil {
		log.Error("latest chapter query failed", zap.Int64("book_id", bookID), zap.Error(err))
	} else if err := o.catalog.SetLatestChapter(ctx, bookID, latest); err != nil {
		log.Error("latest chapter update failed", zap.Int64("book_id", bookID), zap.Error(err))
	}

	if status == domain.StatusPassed {
		o.refresh(ctx, log, bookID)
	}
}

func (o *Orchestrator) refresh(ctx context.Context, log *zap.Logger, bookID int64) {
	if o.indexer == nil {
		return
	}
	if err := o.indexer.RefreshBook(ctx, bookID); err != nil {
		log.Warn("search refresh trigger failed", zap.Int64("book_id", bookID), zap.Error(err))
	}
}

// ManualAudit - решение оператора: безусловно пишет статус в леджер и каталог,
// запускает синхронизацию, классификацию пропускает.
func (o *Orchestrator) ManualAudit(ctx context.Context, ledgerID int64, decision int, reason, operator string) (*domain.LedgerEntry, error) {
	status, err := domain.ParseDecision(decision)
	if err != nil {
		return nil, err
	}

	entry, err := o.ledger.GetByID(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	if err := entry.CanTransitionTo(status, true); err != nil {
		return nil, err
	}

	log := o.logger.With(
		zap.Int64("ledger_id", ledgerID),
		zap.String("kind", string(entry.EntityKind)),
		zap.Int64("entity_id", entry.EntityID),
		zap.String("operator", operator),
	)

	entry.Status = status
	entry.Reason = sql.NullString{String: fmt.Sprintf(manualPrefix, operator) + reason, Valid: true}
	entry.UpdatedAt = o.now()
	if err := o.ledger.Override(ctx, entry); err != nil {
		return nil, fmt.Errorf("manual audit ledger write: %w", err)
	}

	catalogReason := ""
	if status == domain.StatusRejected {
		catalogReason = segment.Truncate(reason, o.cfg.CatalogReasonLimit)
	}
	// Новый task id на строке каталога: запоздавший результат прежнего прогона не перепишет решение оператора
	if o.applyCatalog(ctx, log, domain.CatalogUpdate{
		Kind:      entry.EntityKind,
		EntityID:  entry.EntityID,
		NewTaskID: manualTaskID(entry.ID, entry.UpdatedAt),
		Status:    status,
		Reason:    catalogReason,
	}) {
		o.sync(ctx, log, entry.EntityKind, entry.EntityID, 0, status)
	}

	o.journal.Log(audit.RunEvent{
		TaskID:     entry.TaskID,
		EntityKind: string(entry.EntityKind),
		EntityID:   entry.EntityID,
		Status:     int(status),
		Confidence: entry.Confidence.Float64,
		Reason:     entry.Reason.String,
		Outcome:    audit.OutcomeManual,
		Operator:   operator,
		Timestamp:  entry.UpdatedAt,
	})
	o.metrics.Runs.WithLabelValues(string(entry.EntityKind), audit.OutcomeManual).Inc()
	log.Info("manual audit applied", zap.String("status", status.String()))
	return entry, nil
}

func manualTaskID(ledgerID int64, at time.Time) string {
	return fmt.Sprintf("manual_%d_%d", ledgerID, at.UnixMilli())
}

func (o *Orchestrator) record(r *run, outcome string, err error) {
	e := audit.RunEvent{
		TaskID:     r.req.TaskID,
		EntityKind: string(r.req.EntityKind),
		EntityID:   r.req.EntityID,
		Segments:   r.segments,
		Status:     int(r.entry.Status),
		Confidence: r.verdict.Confidence,
		Reason:     segment.Truncate(r.verdict.Reason, o.cfg.MergedReasonLimit),
		Outcome:    outcome,
		Degraded:   !r.entry.Persisted,
		Timestamp:  o.now(),
		DurationMs: o.now().Sub(r.started).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	o.journal.Log(e)
}
