package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/novel-moderation/internal/domain"
)

type LedgerRepo struct {
	*Store
}

func NewLedgerRepo(s *Store) *LedgerRepo {
	return &LedgerRepo{Store: s}
}

const ledgerColumns = `id, entity_kind, entity_id, content_snapshot, confidence, status, reason, task_id, version, submitted_at, created_at, updated_at`

// Submit: одна строка на (kind, id). Повторная отправка сбрасывает вердикт в PENDING и увеличивает версию.
// Отправка старше уже записанной (повторная доставка) не применяется: domain.ErrSuperseded.
func (r *LedgerRepo) Submit(ctx context.Context, e *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	now := e.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	submitted := e.SubmittedAt
	if submitted.IsZero() {
		submitted = now
	}

	var id int64
	err := r.db.QueryRowContext(ctx, r.q(`
		INSERT INTO moderation_ledger (entity_kind, entity_id, content_snapshot, confidence, status, reason, task_id, version, submitted_at, created_at, updated_at)
		VALUES (?, ?, ?, NULL, 0, NULL, ?, 1, ?, ?, ?)
		ON CONFLICT (entity_kind, entity_id) DO UPDATE SET
			content_snapshot = excluded.content_snapshot,
			confidence       = NULL,
			status           = 0,
			reason           = NULL,
			task_id          = excluded.task_id,
			version          = moderation_ledger.version + 1,
			submitted_at     = excluded.submitted_at,
			updated_at       = excluded.updated_at
		WHERE moderation_ledger.submitted_at <= excluded.submitted_at
		RETURNING id`),
		string(e.EntityKind), e.EntityID, e.ContentSnapshot, e.TaskID, submitted.UnixMilli(), now, now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSuperseded
	}
	if err != nil {
		return nil, fmt.Errorf("ledger submit %s/%d: %w", e.EntityKind, e.EntityID, err)
	}
	return r.GetByID(ctx, id)
}

// Resolve пишет итог прогона, только если с момента Submit сущность не переотправляли.
func (r *LedgerRepo) Resolve(ctx context.Context, e *domain.LedgerEntry) error {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE moderation_ledger
		SET status = ?, confidence = ?, reason = ?, updated_at = ?
		WHERE entity_kind = ? AND entity_id = ? AND (? = 0 OR version = ?)`),
		int(e.Status), e.Confidence, e.Reason, e.UpdatedAt.UTC(),
		string(e.EntityKind), e.EntityID, e.Version, e.Version,
	)
	if err != nil {
		return fmt.Errorf("ledger resolve %s/%d: %w", e.EntityKind, e.EntityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if e.Version == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrStaleSubmission
	}
	return nil
}

// Override - решение оператора. Версия растет, чтобы прогон в полете не перетер ручной вердикт.
func (r *LedgerRepo) Override(ctx context.Context, e *domain.LedgerEntry) error {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE moderation_ledger
		SET status = ?, reason = ?, version = version + 1, updated_at = ?
		WHERE id = ?`),
		int(e.Status), e.Reason, e.UpdatedAt.UTC(), e.ID,
	)
	if err != nil {
		return fmt.Errorf("ledger override %d: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *LedgerRepo) GetByID(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+ledgerColumns+` FROM moderation_ledger WHERE id = ?`), id)
	e, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

func (r *LedgerRepo) GetByEntity(ctx context.Context, kind domain.EntityKind, entityID int64) (*domain.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx, r.q(`SELECT `+ledgerColumns+` FROM moderation_ledger WHERE entity_kind = ? AND entity_id = ?`),
		string(kind), entityID)
	e, err := scanLedger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return e, err
}

// ListByStatus - очередь для операторов: дольше всех ждущие сначала.
func (r *LedgerRepo) ListByStatus(ctx context.Context, status domain.AuditStatus, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT `+ledgerColumns+` FROM moderation_ledger
		WHERE status = ?
		ORDER BY updated_at ASC, id ASC
		LIMIT ?`), int(status), limit)
	if err != nil {
		return nil, fmt.Errorf("ledger list: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// QueueStats - сколько записей в каждом статусе.
func (r *LedgerRepo) QueueStats(ctx context.Context) (domain.QueueStats, error) {
	var st domain.QueueStats
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM moderation_ledger GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("ledger stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status int
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return st, err
		}
		switch domain.AuditStatus(status) {
		case domain.StatusPending:
			st.Pending = n
		case domain.StatusPassed:
			st.Passed = n
		case domain.StatusRejected:
			st.Rejected = n
		}
	}
	return st, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLedger(s scanner) (*domain.LedgerEntry, error) {
	var (
		e         domain.LedgerEntry
		kind      string
		status    int
		submitted int64
	)
	err := s.Scan(&e.ID, &kind, &e.EntityID, &e.ContentSnapshot, &e.Confidence, &status, &e.Reason,
		&e.TaskID, &e.Version, &submitted, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if submitted > 0 {
		e.SubmittedAt = time.UnixMilli(submitted).UTC()
	}
	e.EntityKind = domain.EntityKind(kind)
	e.Status = domain.AuditStatus(status)
	e.Persisted = true
	return &e, nil
}
