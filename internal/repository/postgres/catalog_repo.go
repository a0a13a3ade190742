package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/novel-moderation/internal/domain"
)

// CatalogRepo - книги и главы со своими видимыми полями аудита.
type CatalogRepo struct {
	*Store
	now func() time.Time
}

func NewCatalogRepo(s *Store) *CatalogRepo {
	return &CatalogRepo{Store: s, now: func() time.Time { return time.Now().UTC() }}
}

func table(kind domain.EntityKind) (string, error) {
	switch kind {
	case domain.KindBook:
		return "books", nil
	case domain.KindChapter:
		return "chapters", nil
	}
	return "", fmt.Errorf("%w: unknown entity kind %q", domain.ErrInvalidRequest, kind)
}

// CreateBook сохраняет книгу сразу в PENDING с task id будущей проверки.
func (r *CatalogRepo) CreateBook(ctx context.Context, b *domain.Book, taskID string) error {
	now := r.now()
	err := r.db.QueryRowContext(ctx, r.q(`
		INSERT INTO books (author_id, title, description, audit_status, audit_task_id, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
		RETURNING id`),
		b.AuthorID, b.Title, b.Description, taskID, now, now,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// UpdateBook - правка автора: снова PENDING, прежняя причина стирается.
func (r *CatalogRepo) UpdateBook(ctx context.Context, b *domain.Book, taskID string) error {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE books
		SET title = ?, description = ?, audit_status = 0, audit_reason = NULL, audit_task_id = ?, updated_at = ?
		WHERE id = ?`),
		b.Title, b.Description, taskID, r.now(), b.ID,
	)
	return affectedOne(res, err, "update book")
}

func (r *CatalogRepo) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	var b domain.Book
	err := r.db.QueryRowContext(ctx, r.q(`SELECT id, author_id, title, description FROM books WHERE id = ?`), id).
		Scan(&b.ID, &b.AuthorID, &b.Title, &b.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book %d: %w", id, err)
	}
	return &b, nil
}

func (r *CatalogRepo) CreateChapter(ctx context.Context, c *domain.Chapter, taskID string) error {
	now := r.now()
	err := r.db.QueryRowContext(ctx, r.q(`
		INSERT INTO chapters (book_id, sequence_number, title, content, audit_status, audit_task_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)
		RETURNING id`),
		c.BookID, c.Sequence, c.Title, c.Content, taskID, now, now,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("create chapter: %w", err)
	}
	return nil
}

func (r *CatalogRepo) UpdateChapter(ctx context.Context, c *domain.Chapter, taskID string) error {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE chapters
		SET title = ?, content = ?, audit_status = 0, audit_reason = NULL, audit_task_id = ?, updated_at = ?
		WHERE id = ?`),
		c.Title, c.Content, taskID, r.now(), c.ID,
	)
	return affectedOne(res, err, "update chapter")
}

func (r *CatalogRepo) GetChapter(ctx context.Context, id int64) (*domain.Chapter, error) {
	var c domain.Chapter
	err := r.db.QueryRowContext(ctx, r.q(`
		SELECT c.id, c.book_id, c.sequence_number, c.title, c.content, b.title
		FROM chapters c JOIN books b ON b.id = c.book_id
		WHERE c.id = ?`), id).
		Scan(&c.ID, &c.BookID, &c.Sequence, &c.Title, &c.Content, &c.BookTitle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chapter %d: %w", id, err)
	}
	return &c, nil
}

// AuditFields - текущие видимые поля аудита (для проверок и консоли).
func (r *CatalogRepo) AuditFields(ctx context.Context, kind domain.EntityKind, id int64) (domain.CatalogUpdate, error) {
	u := domain.CatalogUpdate{Kind: kind, EntityID: id}
	t, err := table(kind)
	if err != nil {
		return u, err
	}
	var (
		status int
		reason sql.NullString
	)
	err = r.db.QueryRowContext(ctx, r.q(`SELECT audit_status, audit_reason, audit_task_id FROM `+t+` WHERE id = ?`), id).
		Scan(&status, &reason, &u.TaskID)
	if errors.Is(err, sql.ErrNoRows) {
		return u, domain.ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Status = domain.AuditStatus(status)
	u.Reason = reason.String
	return u, nil
}

// ApplyAudit пишет статус и причину. С непустым TaskID запись условна:
// если сущность уже отправлена на новую проверку, возвращается false.
// Непустой NewTaskID заменяет audit_task_id в той же записи.
func (r *CatalogRepo) ApplyAudit(ctx context.Context, u domain.CatalogUpdate) (bool, error) {
	t, err := table(u.Kind)
	if err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE `+t+`
		SET audit_status = ?, audit_reason = ?,
			audit_task_id = CASE WHEN ? = '' THEN audit_task_id ELSE ? END,
			updated_at = ?
		WHERE id = ? AND (? = '' OR audit_task_id = '' OR audit_task_id = ?)`),
		int(u.Status), nullString(u.Reason), u.NewTaskID, u.NewTaskID, r.now(), u.EntityID, u.TaskID, u.TaskID,
	)
	if err != nil {
		return false, fmt.Errorf("apply audit to %s %d: %w", u.Kind, u.EntityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, r.q(`SELECT 1 FROM `+t+` WHERE id = ?`), u.EntityID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrNotFound
	}
	return false, err
}

func (r *CatalogRepo) ChapterBookID(ctx context.Context, chapterID int64) (int64, error) {
	var bookID int64
	err := r.db.QueryRowContext(ctx, r.q(`SELECT book_id FROM chapters WHERE id = ?`), chapterID).Scan(&bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	return bookID, err
}

// LatestPassedChapter - PASSED глава с наибольшим номером, nil если таких нет.
func (r *CatalogRepo) LatestPassedChapter(ctx context.Context, bookID int64) (*domain.ChapterRef, error) {
	var ref domain.ChapterRef
	err := r.db.QueryRowContext(ctx, r.q(`
		SELECT id, sequence_number, title FROM chapters
		WHERE book_id = ? AND audit_status = ?
		ORDER BY sequence_number DESC
		LIMIT 1`), bookID, int(domain.StatusPassed)).
		Scan(&ref.ID, &ref.Sequence, &ref.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest chapter of book %d: %w", bookID, err)
	}
	return &ref, nil
}

func (r *CatalogRepo) SetLatestChapter(ctx context.Context, bookID int64, ref *domain.ChapterRef) error {
	var (
		id    sql.NullInt64
		seq   sql.NullInt64
		title sql.NullString
	)
	if ref != nil {
		id = sql.NullInt64{Int64: ref.ID, Valid: true}
		seq = sql.NullInt64{Int64: int64(ref.Sequence), Valid: true}
		title = sql.NullString{String: ref.Title, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE books SET latest_chapter_id = ?, latest_chapter_sequence = ?, latest_chapter_title = ?
		WHERE id = ?`), id, seq, title, bookID)
	return affectedOne(res, err, "set latest chapter")
}

func (r *CatalogRepo) LatestChapter(ctx context.Context, bookID int64) (*domain.ChapterRef, error) {
	var (
		id    sql.NullInt64
		seq   sql.NullInt64
		title sql.NullString
	)
	err := r.db.QueryRowContext(ctx, r.q(`
		SELECT latest_chapter_id, latest_chapter_sequence, latest_chapter_title FROM books WHERE id = ?`), bookID).
		Scan(&id, &seq, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil || !id.Valid {
		return nil, err
	}
	return &domain.ChapterRef{ID: id.Int64, Sequence: int(seq.Int64), Title: title.String}, nil
}

func affectedOne(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
