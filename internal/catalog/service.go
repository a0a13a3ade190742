// Package catalog - сторона заказчика модерации: сохраняет книги и главы,
// публикует AuditRequest и применяет пришедшие AuditResult.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/novel-moderation/internal/domain"
	"go.uber.org/zap"
)

type Store interface {
	CreateBook(ctx context.Context, b *domain.Book, taskID string) error
	UpdateBook(ctx context.Context, b *domain.Book, taskID string) error
	GetBook(ctx context.Context, id int64) (*domain.Book, error)
	CreateChapter(ctx context.Context, c *domain.Chapter, taskID string) error
	UpdateChapter(ctx context.Context, c *domain.Chapter, taskID string) error
	GetChapter(ctx context.Context, id int64) (*domain.Chapter, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, stream string, v any) error
}

// Submission - ответ автору. Queued=false: сущность сохранена, но запрос не ушел в шину.
type Submission struct {
	TaskID string `json:"taskId"`
	Queued bool   `json:"queued"`
}

type Service struct {
	store     Store
	publisher Publisher
	stream    string
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, pub Publisher, stream string, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: pub,
		stream:    stream,
		logger:    logger.Named("catalog"),
		now:       time.Now,
	}
}

// SaveBook создает (ID == 0) или обновляет книгу и отправляет ее на модерацию.
func (s *Service) SaveBook(ctx context.Context, b *domain.Book) (Submission, error) {
	if strings.TrimSpace(b.Title) == "" {
		return Submission{}, fmt.Errorf("%w: book title is required", domain.ErrInvalidRequest)
	}

	now := s.now()
	// для новой книги id еще нет: task id перевыпускаем после вставки
	taskID := domain.NewTaskID(domain.PurposeBookAudit, b.ID, now)

	// 1. Persist
	if b.ID == 0 {
		if err := s.store.CreateBook(ctx, b, taskID); err != nil {
			return Submission{}, err
		}
		taskID = domain.NewTaskID(domain.PurposeBookAudit, b.ID, now)
		if err := s.store.UpdateBook(ctx, b, taskID); err != nil {
			return Submission{}, err
		}
	} else if err := s.store.UpdateBook(ctx, b, taskID); err != nil {
		return Submission{}, err
	}

	// 2. Publish
	return s.publish(ctx, domain.AuditRequest{
		TaskID:      taskID,
		EntityKind:  domain.KindBook,
		EntityID:    b.ID,
		Title:       b.Title,
		Description: b.Description,
		SubmittedAt: now,
	}), nil
}

// SaveChapter создает (ID == 0) или обновляет главу и отправляет ее на модерацию.
func (s *Service) SaveChapter(ctx context.Context, c *domain.Chapter) (Submission, error) {
	if strings.TrimSpace(c.Title) == "" || c.Sequence <= 0 {
		return Submission{}, fmt.Errorf("%w: chapter title and sequence are required", domain.ErrInvalidRequest)
	}

	now := s.now()
	if c.ID == 0 {
		book, err := s.store.GetBook(ctx, c.BookID)
		if err != nil {
			return Submission{}, err
		}
		if err := s.store.CreateChapter(ctx, c, ""); err != nil {
			return Submission{}, err
		}
		c.BookTitle = book.Title
	} else {
		existing, err := s.store.GetChapter(ctx, c.ID)
		if err != nil {
			return Submission{}, err
		}
		c.BookID, c.BookTitle = existing.BookID, existing.BookTitle
		if c.Sequence == 0 {
			c.Sequence = existing.Sequence
		}
	}

	taskID := domain.NewTaskID(domain.PurposeChapterAudit, c.ID, now)
	if err := s.store.UpdateChapter(ctx, c, taskID); err != nil {
		return Submission{}, err
	}

	return s.publish(ctx, domain.AuditRequest{
		TaskID:          taskID,
		EntityKind:      domain.KindChapter,
		EntityID:        c.ID,
		BookID:          c.BookID,
		Title:           c.Title,
		Content:         c.Content,
		ChapterSequence: c.Sequence,
		BookTitle:       c.BookTitle,
		SubmittedAt:     now,
	}), nil
}

// publish после успешной записи. Сбой шины не откатывает сохраненное: сущность остается
// PENDING до повторной отправки или ручного аудита.
func (s *Service) publish(ctx context.Context, req domain.AuditRequest) Submission {
	if err := s.publisher.PublishJSON(ctx, s.stream, req); err != nil {
		s.logger.Error("audit request not published, entity stays pending",
			zap.String("task_id", req.TaskID),
			zap.String("kind", string(req.EntityKind)),
			zap.Int64("entity_id", req.EntityID),
			zap.Error(err))
		return Submission{TaskID: req.TaskID, Queued: false}
	}
	s.logger.Info("audit requested",
		zap.String("task_id", req.TaskID),
		zap.String("kind", string(req.EntityKind)),
		zap.Int64("entity_id", req.EntityID))
	return Submission{TaskID: req.TaskID, Queued: true}
}
