package bus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/novel-moderation/internal/infra"
	"go.uber.org/zap"
)

const payloadField = "payload"

type StreamsConfig struct {
	MaxDeliveries int64         // после стольких неудач сообщение уходит в DLQ
	ClaimAfter    time.Duration // сколько сообщение может висеть у упавшего потребителя
	Block         time.Duration
	Batch         int64
	MaxLen        int64 // приблизительный лимит длины потока
}

// RedisStreams - брокер на consumer groups: XREADGROUP, XACK, XAUTOCLAIM для повторов, DLQ-поток.
type RedisStreams struct {
	rdb      *redis.Client
	cfg      StreamsConfig
	consumer string
	logger   *zap.Logger
}

func NewRedisStreams(rdb *redis.Client, cfg StreamsConfig, logger *zap.Logger) *RedisStreams {
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}
	if cfg.ClaimAfter <= 0 {
		cfg.ClaimAfter = 30 * time.Second
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 10
	}
	host, _ := os.Hostname()
	return &RedisStreams{
		rdb:      rdb,
		cfg:      cfg,
		consumer: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		logger:   logger.With(zap.String("mod", "bus")),
	}
}

func (b *RedisStreams) Publish(ctx context.Context, stream string, payload []byte) error {
	return b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{payloadField: payload},
	}).Err()
}

// Subscribe - "живучий" цикл чтения группы: переживает рестарт Redis, сам создает группу.
func (b *RedisStreams) Subscribe(ctx context.Context, stream, group string, h Handler) error {
	log := b.logger.With(zap.String("stream", stream), zap.String("group", group), zap.String("consumer", b.consumer))

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := b.ensureGroup(ctx, stream, group); err != nil {
			log.Error("failed to create consumer group", zap.Error(err))
			if !sleep(ctx, 5*time.Second) {
				return nil
			}
			continue
		}

		// Сначала забираем то, что зависло у упавших потребителей
		if err := b.reclaim(ctx, stream, group, h, log); err != nil && ctx.Err() == nil {
			log.Warn("reclaim failed", zap.Error(err))
		}

		res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumer,
			Streams:  []string{stream, ">"},
			Count:    b.cfg.Batch,
			Block:    b.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("stream read failed", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		for _, s := range res {
			for _, m := range s.Messages {
				b.dispatch(ctx, stream, group, m, 1, h, log)
			}
		}
	}
}

func (b *RedisStreams) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (b *RedisStreams) reclaim(ctx context.Context, stream, group string, h Handler, log *zap.Logger) error {
	msgs, _, err := b.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: b.consumer,
		MinIdle:  b.cfg.ClaimAfter,
		Start:    "0-0",
		Count:    b.cfg.Batch,
	}).Result()
	if err != nil {
		return err
	}

	for _, m := range msgs {
		deliveries := int64(2)
		pend, err := b.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  group,
			Start:  m.ID,
			End:    m.ID,
			Count:  1,
		}).Result()
		if err == nil && len(pend) == 1 {
			deliveries = pend[0].RetryCount
		}
		b.dispatch(ctx, stream, group, m, deliveries, h, log)
	}
	return nil
}

func (b *RedisStreams) dispatch(ctx context.Context, stream, group string, m redis.XMessage, deliveries int64, h Handler, log *zap.Logger) {
	msg := Message{ID: m.ID, Stream: stream, Deliveries: deliveries}
	switch p := m.Values[payloadField].(type) {
	case string:
		msg.Payload = []byte(p)
	case []byte:
		msg.Payload = p
	}

	err := h(ctx, msg)
	if err == nil {
		b.ack(ctx, stream, group, m.ID, log)
		return
	}

	log.Warn("handler failed", zap.String("msg_id", m.ID), zap.Int64("deliveries", deliveries), zap.Error(err))
	if deliveries < b.cfg.MaxDeliveries {
		// Остается в PEL, XAUTOCLAIM вернет его через ClaimAfter
		return
	}

	dlq := infra.DeadLetterStream(stream)
	if dErr := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: dlq,
		MaxLen: b.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			payloadField: msg.Payload,
			"source_id":  m.ID,
			"group":      group,
			"deliveries": deliveries,
			"error":      err.Error(),
		},
	}).Err(); dErr != nil {
		log.Error("dead-letter publish failed", zap.String("msg_id", m.ID), zap.Error(dErr))
		return
	}
	log.Error("message moved to dead-letter stream", zap.String("msg_id", m.ID), zap.String("dlq", dlq))
	b.ack(ctx, stream, group, m.ID, log)
}

func (b *RedisStreams) ack(ctx context.Context, stream, group, id string, log *zap.Logger) {
	if err := b.rdb.XAck(ctx, stream, group, id).Err(); err != nil {
		log.Error("ack failed", zap.String("msg_id", id), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
