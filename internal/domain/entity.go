package domain

import "fmt"

// EntityKind - тип модерируемой сущности.
type EntityKind string

const (
	KindBook    EntityKind = "book"
	KindChapter EntityKind = "chapter"
)

func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case KindBook, KindChapter:
		return EntityKind(s), nil
	}
	return "", fmt.Errorf("%w: unknown entity kind %q", ErrInvalidRequest, s)
}

type Book struct {
	ID          int64  `json:"id"`
	AuthorID    int64  `json:"author_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Chapter struct {
	ID        int64  `json:"id"`
	BookID    int64  `json:"book_id"`
	Sequence  int    `json:"sequence"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	BookTitle string `json:"book_title,omitempty"`
}

// EntityFields - снимок текстовых полей, который видит классификатор.
type EntityFields struct {
	Kind            EntityKind
	ID              int64
	BookID          int64
	Title           string
	Description     string // книга
	Content         string // глава
	ChapterSequence int
	BookTitle       string
}

// Text возвращает основной текст, который режется на сегменты.
func (f EntityFields) Text() string {
	if f.Kind == KindChapter {
		return f.Content
	}
	return f.Description
}

// Snapshot - то, что сохраняется в леджер как "что именно проверяли".
func (f EntityFields) Snapshot() string {
	if f.Kind == KindChapter {
		return f.Title + "\n" + f.Content
	}
	return f.Title + "\n" + f.Description
}

// ChapterRef - указатель "последняя опубликованная глава" у книги.
type ChapterRef struct {
	ID       int64
	Sequence int
	Title    string
}

// CatalogUpdate - видимые поля аудита у сущности каталога.
// TaskID пустой означает безусловную запись (ручной аудит оператора).
// NewTaskID, если задан, заменяет audit_task_id: результаты прежних прогонов больше не совпадут.
type CatalogUpdate struct {
	Kind      EntityKind
	EntityID  int64
	TaskID    string
	NewTaskID string
	Status    AuditStatus
	Reason    string
}
