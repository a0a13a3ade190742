package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Назначения task id
const (
	PurposeBookAudit    = "book_audit"
	PurposeChapterAudit = "chapter_audit"
)

// NewTaskID - {purpose}_{entityId}_{unixMillis}_{suffix}. Формат только для отладки, протокол его не разбирает.
func NewTaskID(purpose string, entityID int64, now time.Time) string {
	return fmt.Sprintf("%s_%d_%d_%s", purpose, entityID, now.UnixMilli(), uuid.NewString()[:8])
}

func PurposeFor(kind EntityKind) string {
	if kind == KindChapter {
		return PurposeChapterAudit
	}
	return PurposeBookAudit
}
