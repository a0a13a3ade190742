package domain

// ModerationDashboard - сводка для Console API.
type ModerationDashboard struct {
	Queue    QueueStats    `json:"queue"`
	Activity ActivityStats `json:"activity"`
}

type QueueStats struct {
	Pending  int64 `json:"pending"` // Ждут человека
	Passed   int64 `json:"passed"`
	Rejected int64 `json:"rejected"`
}

type ActivityStats struct {
	RunsLastHour   int64   `json:"runs_last_hour"`
	FailedLastHour int64   `json:"failed_last_hour"`
	P95DurationMs  float64 `json:"p95_duration_ms"`
}
