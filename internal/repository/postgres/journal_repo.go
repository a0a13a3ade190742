package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/novel-moderation/internal/audit"
)

// JournalRepo реализует audit.StorageInterface.
type JournalRepo struct {
	*Store
}

func NewJournalRepo(s *Store) *JournalRepo {
	return &JournalRepo{Store: s}
}

func (r *JournalRepo) WriteBatch(ctx context.Context, events []audit.RunEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_runs
	const numFields = 14
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", numFields), ", ") + ")"
	placeholders := make([]string, 0, len(events))
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for _, e := range events {
		placeholders = append(placeholders, row)
		vals = append(vals,
			e.ID, e.TaskID, e.EntityKind, e.EntityID, e.Segments, e.Status, e.Confidence,
			e.Reason, e.Outcome, e.Degraded, e.Operator, e.DurationMs, e.Error, e.Timestamp.UTC(),
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_runs (id, task_id, entity_kind, entity_id, segments, status, confidence, reason, outcome, degraded, operator, duration_ms, error, created_at) VALUES %s",
		strings.Join(placeholders, ", "),
	)

	_, err := r.db.ExecContext(ctx, r.q(query), vals...)
	return err
}

// ByTask - история прогонов по task id (для консоли).
func (r *JournalRepo) ByTask(ctx context.Context, taskID string) ([]audit.RunEvent, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, task_id, entity_kind, entity_id, segments, status, confidence, reason, outcome, degraded, operator, duration_ms, error, created_at
		FROM audit_runs WHERE task_id = ? ORDER BY created_at`), taskID)
	if err != nil {
		return nil, fmt.Errorf("journal by task: %w", err)
	}
	defer rows.Close()

	var out []audit.RunEvent
	for rows.Next() {
		var e audit.RunEvent
		if err := rows.Scan(&e.ID, &e.TaskID, &e.EntityKind, &e.EntityID, &e.Segments, &e.Status, &e.Confidence,
			&e.Reason, &e.Outcome, &e.Degraded, &e.Operator, &e.DurationMs, &e.Error, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
