package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

type Metrics struct {
	// Traffic: прогоны модерации по типу сущности и итогу (passed, rejected, pending, stale)
	Runs *prometheus.CounterVec

	// Latency: длительность всего прогона
	RunDuration *prometheus.HistogramVec

	// Классификатор: вызовы по исходу (ok, refused, failed) и их длительность
	ClassifierCalls   *prometheus.CounterVec
	ClassifierLatency prometheus.Histogram

	// Сколько сегментов ушло в модель за прогон
	SegmentsPerRun prometheus.Histogram

	// Результаты, отправленные в шину (success=true/false)
	ResultsEmitted *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Деградация: прогон без леджера и устаревшие сверки
	DegradedLedger  prometheus.Counter
	StaleReconciles prometheus.Counter

	// Journal: заполненность буфера (backpressure)
	JournalBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Runs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_runs_total",
			Help: "Audit runs by entity kind and outcome.",
		}, []string{"kind", "outcome"}),

		RunDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moderation_run_duration_seconds",
			Help:    "Histogram of audit run latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),

		ClassifierCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_classifier_calls_total",
			Help: "Classifier calls by outcome.",
		}, []string{"outcome"}),

		ClassifierLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "moderation_classifier_duration_seconds",
			Help:    "Histogram of external classifier call latencies.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),

		SegmentsPerRun: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "moderation_segments_per_run",
			Help:    "Number of classifier segments per audit run.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),

		ResultsEmitted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_results_emitted_total",
			Help: "Audit results published to the bus.",
		}, []string{"success"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "moderation_circuit_breaker_state",
			Help: "Current state of the classifier circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),

		DegradedLedger: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "moderation_degraded_ledger_total",
			Help: "Audit runs that proceeded with an in-memory ledger entry.",
		}),

		StaleReconciles: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "moderation_stale_reconciles_total",
			Help: "Reconciliations skipped because the entity was resubmitted.",
		}),

		JournalBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "moderation_journal_buffer_utilization",
			Help: "Current number of run events in the journal buffer.",
		}),
	}
}

// ObserveClassification реализует classifier.Observer.
func (m *Metrics) ObserveClassification(outcome string, elapsed time.Duration) {
	m.ClassifierCalls.WithLabelValues(outcome).Inc()
	m.ClassifierLatency.Observe(elapsed.Seconds())
}

// BreakerStateChanged подключается в connectors.ReliabilityConfig.OnStateChange.
func (m *Metrics) BreakerStateChanged(name string, _, to gobreaker.State) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
}

// SetJournalFill реализует audit.FillObserver.
func (m *Metrics) SetJournalFill(n int) {
	m.JournalBufferFill.Set(float64(n))
}
