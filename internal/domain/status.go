package domain

import (
	"errors"
	"fmt"
)

// AuditStatus - статус модерации сущности. Числовые значения уходят в БД и в сообщения шины.
type AuditStatus int

const (
	StatusPending  AuditStatus = 0 // Ждет решения (автомат не уверен или еще не отработал)
	StatusPassed   AuditStatus = 1 // Опубликовано
	StatusRejected AuditStatus = 2 // Отклонено
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidStatus     = errors.New("invalid audit status")
	ErrInvalidRequest    = errors.New("invalid audit request")
	ErrStaleSubmission   = errors.New("stale submission: entity was resubmitted")
	ErrSuperseded        = errors.New("superseded: a newer submission is already recorded")
	ErrInvalidTransition = errors.New("invalid audit status transition")
)

func (s AuditStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPassed:
		return "passed"
	case StatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s AuditStatus) Valid() bool {
	return s == StatusPending || s == StatusPassed || s == StatusRejected
}

// Severity задает порядок для слияния: REJECTED > PENDING > PASSED.
func (s AuditStatus) Severity() int {
	switch s {
	case StatusRejected:
		return 2
	case StatusPending:
		return 1
	default:
		return 0
	}
}

// ParseDecision проверяет статус, который оператор может выставить вручную.
func ParseDecision(v int) (AuditStatus, error) {
	s := AuditStatus(v)
	if s != StatusPassed && s != StatusRejected {
		return StatusPending, fmt.Errorf("%w: %d", ErrInvalidStatus, v)
	}
	return s, nil
}
