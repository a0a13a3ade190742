package domain

import (
	"database/sql"
	"time"
)

// LedgerEntry - последняя известная модерация сущности. Одна строка на (kind, id).
type LedgerEntry struct {
	ID              int64           `json:"id"`
	EntityKind      EntityKind      `json:"entity_kind"`
	EntityID        int64           `json:"entity_id"`
	ContentSnapshot string          `json:"content_snapshot"`
	Confidence      sql.NullFloat64 `json:"-"`
	Status          AuditStatus     `json:"status"`
	Reason          sql.NullString  `json:"-"`
	TaskID          string          `json:"task_id"`
	Version         int64           `json:"version"` // растет при каждой новой отправке на проверку
	SubmittedAt     time.Time       `json:"submitted_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Persisted=false - запись живет только в памяти (леджер был недоступен при старте прогона).
	Persisted bool `json:"-"`
}

// LedgerView - представление для Console API (NULL-поля развернуты в указатели).
type LedgerView struct {
	LedgerEntry
	ConfidenceValue *float64 `json:"confidence"`
	ReasonValue     *string  `json:"reason"`
}

func (e *LedgerEntry) View() LedgerView {
	v := LedgerView{LedgerEntry: *e}
	if e.Confidence.Valid {
		c := e.Confidence.Float64
		v.ConfidenceValue = &c
	}
	if e.Reason.Valid {
		r := e.Reason.String
		v.ReasonValue = &r
	}
	return v
}

// CanTransitionTo - правила автомата: PENDING -> {PASSED, REJECTED, PENDING(human review)}.
// Оператор может переписать любой финальный статус, но не может вернуть запись в PENDING.
func (e *LedgerEntry) CanTransitionTo(next AuditStatus, manual bool) error {
	if !next.Valid() {
		return ErrInvalidStatus
	}
	if manual {
		if next == StatusPending {
			return ErrInvalidTransition
		}
		return nil
	}
	if e.Status != StatusPending {
		return ErrInvalidTransition
	}
	return nil
}
