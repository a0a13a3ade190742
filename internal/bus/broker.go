// Package bus - доставка AuditRequest/AuditResult "минимум один раз" через Redis Streams.
// Обработчик регистрируется на поток и группу; повторы и DLQ - забота брокера.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
)

// Message - одна доставка. Deliveries начинается с 1.
type Message struct {
	ID         string
	Stream     string
	Payload    []byte
	Deliveries int64
}

// Handler возвращает ошибку, если сообщение надо доставить повторно.
type Handler func(ctx context.Context, msg Message) error

type Broker interface {
	Publish(ctx context.Context, stream string, payload []byte) error
	// Subscribe блокируется, пока не отменен ctx.
	Subscribe(ctx context.Context, stream, group string, h Handler) error
}

// Publisher - JSON поверх брокера с повторами публикации.
type Publisher struct {
	broker   Broker
	attempts uint
	delay    time.Duration
}

func NewPublisher(b Broker, attempts uint) *Publisher {
	if attempts == 0 {
		attempts = 3
	}
	return &Publisher{broker: b, attempts: attempts, delay: 100 * time.Millisecond}
}

func (p *Publisher) PublishJSON(ctx context.Context, stream string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", stream, err)
	}

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.DelayType(retry.BackOffDelay),
	)
	if err := r.Do(func() error {
		return p.broker.Publish(ctx, stream, payload)
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}
	return nil
}
