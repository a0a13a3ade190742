package audit

import "time"

// Итог прогона для журнала
const (
	OutcomePassed   = "passed"
	OutcomeRejected = "rejected"
	OutcomePending  = "pending" // ждет человека
	OutcomeStale    = "stale"   // сущность успели переотправить
	OutcomeFailed   = "failed"  // прогон сломался, ушел success=false
	OutcomeManual   = "manual"  // решение оператора
)

// RunEvent - одна запись журнала audit_runs.
type RunEvent struct {
	ID         string    `json:"id"`      // UUID события
	TaskID     string    `json:"task_id"` // Сквозной ID запроса
	EntityKind string    `json:"entity_kind"`
	EntityID   int64     `json:"entity_id"`
	Segments   int       `json:"segments"` // сколько раз вызывали модель
	Status     int       `json:"status"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Outcome    string    `json:"outcome"`
	Degraded   bool      `json:"degraded"` // леджер был недоступен
	Operator   string    `json:"operator,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"` // Время обработки
	Error      string    `json:"error"`
}
