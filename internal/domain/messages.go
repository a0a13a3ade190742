package domain

import "time"

// AuditRequest - запрос на модерацию, публикуется сервисом каталога.
type AuditRequest struct {
	TaskID          string     `json:"taskId"`
	EntityKind      EntityKind `json:"entityKind"`
	EntityID        int64      `json:"entityId"`
	BookID          int64      `json:"bookId,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Content         string     `json:"content,omitempty"`
	ChapterSequence int        `json:"chapterSequence,omitempty"`
	BookTitle       string     `json:"bookTitle,omitempty"`
	SubmittedAt     time.Time  `json:"submittedAt"`
}

func (r AuditRequest) Validate() error {
	if r.TaskID == "" {
		return ErrInvalidRequest
	}
	if _, err := ParseEntityKind(string(r.EntityKind)); err != nil {
		return err
	}
	if r.EntityID <= 0 {
		return ErrInvalidRequest
	}
	return nil
}

func (r AuditRequest) Fields() EntityFields {
	return EntityFields{
		Kind:            r.EntityKind,
		ID:              r.EntityID,
		BookID:          r.BookID,
		Title:           r.Title,
		Description:     r.Description,
		Content:         r.Content,
		ChapterSequence: r.ChapterSequence,
		BookTitle:       r.BookTitle,
	}
}

// AuditResult - ответ воркера модерации. TaskID эхом возвращается из запроса.
type AuditResult struct {
	TaskID       string      `json:"taskId"`
	EntityKind   EntityKind  `json:"entityKind"`
	EntityID     int64       `json:"entityId"`
	BookID       int64       `json:"bookId,omitempty"`
	Status       AuditStatus `json:"status"`
	Confidence   float64     `json:"confidence"`
	Reason       string      `json:"reason"`
	Success      bool        `json:"success"`
	ErrorMessage *string     `json:"errorMessage"`
}

// FailureResult синтезирует ответ для случая, когда обработка запроса сломалась.
func FailureResult(req AuditRequest, err error) AuditResult {
	msg := err.Error()
	return AuditResult{
		TaskID:       req.TaskID,
		EntityKind:   req.EntityKind,
		EntityID:     req.EntityID,
		BookID:       req.BookID,
		Status:       StatusPending,
		Success:      false,
		ErrorMessage: &msg,
	}
}
