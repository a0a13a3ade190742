package audit

/*
Журнал прогонов модерации (audit_runs).

- Non-blocking: Log не ждет БД, событие уходит в буферизированный канал.
  Переполнение буфера - сброс события с записью в лог (Load Shedding).
- Batching: пачка пишется по таймеру или при достижении BatchSize.
- Drain Pattern: Stop закрывает канал, воркер дочитывает остатки и делает финальный flush.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняются события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []RunEvent) error
}

// FillObserver - заполненность буфера (реализует engine.Metrics).
type FillObserver interface {
	SetJournalFill(n int)
}

type Recorder interface {
	Log(event RunEvent)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

type Journal struct {
	ch       chan RunEvent
	repo     StorageInterface
	fill     FillObserver
	logger   *zap.Logger
	batch    int
	interval time.Duration
	wg       sync.WaitGroup

	mu       sync.RWMutex // Log держит RLock, Stop берет Lock перед close
	isClosed int32
}

func NewJournal(repo StorageInterface, fill FillObserver, opts Options, logger *zap.Logger) *Journal {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Journal{
		ch:       make(chan RunEvent, opts.BufferSize),
		repo:     repo,
		fill:     fill,
		logger:   logger.With(zap.String("mod", "journal")),
		batch:    opts.BatchSize,
		interval: opts.FlushInterval,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if !atomic.CompareAndSwapInt32(&j.isClosed, 0, 1) {
		j.mu.Unlock()
		return
	}
	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

func (j *Journal) Log(event RunEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if atomic.LoadInt32(&j.isClosed) == 1 {
		j.logger.Warn("run event dropped: journal is stopping", zap.String("task_id", event.TaskID))
		return
	}

	select {
	case j.ch <- event:
		if j.fill != nil {
			j.fill.SetJournalFill(len(j.ch))
		}
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("task_id", event.TaskID),
			zap.String("outcome", event.Outcome),
		)
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]RunEvent, 0, j.batch)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Используем Background, так как основной контекст может быть уже закрыт
			if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
				j.logger.Error("journal flush failed", zap.Int("events", len(batch)), zap.Error(err))
			}
			batch = batch[:0]
		}
		if j.fill != nil {
			j.fill.SetJournalFill(len(j.ch))
		}
	}

	for {
		select {
		case event, ok := <-j.ch:
			if !ok {
				flush() // Финальный сброс
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= j.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
