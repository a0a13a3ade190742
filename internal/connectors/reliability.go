package connectors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Model - то же, что classifier.Model; продублировано, чтобы коннекторы не зависели от шлюза.
type Model interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type ReliabilityConfig struct {
	Name        string
	RateLimit   float64 // запросов в секунду, 0 - без ограничения
	RateBurst   int
	Timeout     time.Duration // на один вызов модели
	MaxRequests uint32        // пропускаем в half-open
	Interval    time.Duration
	OpenTimeout time.Duration // сколько CB остается открытым
	Failures    uint32        // подряд, после которых CB размыкается

	OnStateChange func(name string, from, to gobreaker.State)
}

// ReliabilityWrapper защищает вызов внешней модели: лимитер, таймаут, предохранитель.
// Повторов здесь нет: один Generate - один вызов модели.
type ReliabilityWrapper struct {
	next    Model
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration

	mu          sync.Mutex
	pausedUntil time.Time // провайдер попросил подождать (Retry-After)
}

func NewReliabilityWrapper(next Model, cfg ReliabilityConfig) *ReliabilityWrapper {
	failures := cfg.Failures
	if failures == 0 {
		failures = 5
	}
	name := cfg.Name
	if name == "" {
		name = "classifier"
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Отказ по контенту - ответ модели, а не поломка провайдера
		IsSuccessful: func(err error) bool {
			var refusal *ContentRefusalError
			return err == nil || errors.As(err, &refusal)
		},
		OnStateChange: cfg.OnStateChange,
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: limiter,
		timeout: cfg.Timeout,
	}
}

func (w *ReliabilityWrapper) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := w.throttled(); err != nil {
		return "", err
	}

	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	// 2. Circuit Breaker
	res, err := w.cb.Execute(func() (interface{}, error) {
		callCtx := ctx
		if w.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, w.timeout)
			defer cancel()
		}
		return w.next.Generate(callCtx, system, prompt)
	})
	if err != nil {
		var tErr *ThrottleError
		if errors.As(err, &tErr) {
			w.pause(tErr.RetryAfter)
		}
		return "", err
	}
	return res.(string), nil
}

func (w *ReliabilityWrapper) State() gobreaker.State {
	return w.cb.State()
}

func (w *ReliabilityWrapper) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if until := time.Now().Add(d); until.After(w.pausedUntil) {
		w.pausedUntil = until
	}
}

// throttled: пока действует Retry-After с прошлого вызова, модель не вызываем и сразу отвечаем ошибкой.
func (w *ReliabilityWrapper) throttled() error {
	w.mu.Lock()
	d := time.Until(w.pausedUntil)
	w.mu.Unlock()
	if d <= 0 {
		return nil
	}
	return &ThrottleError{RetryAfter: d, Cause: ErrProviderPaused}
}
