package postgres

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/xela07ax/novel-moderation/internal/audit"
	"github.com/xela07ax/novel-moderation/internal/domain"
)

type DashboardRepo struct {
	*Store
	ledger *LedgerRepo
}

func NewDashboardRepo(s *Store) *DashboardRepo {
	return &DashboardRepo{Store: s, ledger: NewLedgerRepo(s)}
}

// GetDashboard - очередь по статусам и активность воркеров за окно (обычно 60 минут).
func (r *DashboardRepo) GetDashboard(ctx context.Context, window time.Duration) (*domain.ModerationDashboard, error) {
	d := &domain.ModerationDashboard{}

	// 1. Очередь
	q, err := r.ledger.QueueStats(ctx)
	if err != nil {
		return nil, err
	}
	d.Queue = q

	// 2. Активность из журнала прогонов
	since := time.Now().Add(-window).UTC()
	err = r.db.QueryRowContext(ctx, r.q(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
		FROM audit_runs
		WHERE created_at > ?`), audit.OutcomeFailed, since).
		Scan(&d.Activity.RunsLastHour, &d.Activity.FailedLastHour)
	if err != nil {
		return nil, err
	}

	// 3. P95 длительности: в Postgres честный PERCENTILE_CONT, в SQLite считаем сами
	if r.dialect == Postgres {
		err = r.db.QueryRowContext(ctx, r.q(`
			SELECT COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY duration_ms), 0)
			FROM audit_runs WHERE created_at > ?`), since).Scan(&d.Activity.P95DurationMs)
		return d, err
	}

	rows, err := r.db.QueryContext(ctx, r.q(`SELECT duration_ms FROM audit_runs WHERE created_at > ?`), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var durations []float64
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, err
		}
		durations = append(durations, float64(ms))
	}
	d.Activity.P95DurationMs = percentile(durations, 0.95)
	return d, rows.Err()
}

// percentile - линейная интерполяция, как PERCENTILE_CONT.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	pos := p * float64(len(values)-1)
	lo, hi := math.Floor(pos), math.Ceil(pos)
	if lo == hi {
		return values[int(lo)]
	}
	return values[int(lo)] + (values[int(hi)]-values[int(lo)])*(pos-lo)
}
