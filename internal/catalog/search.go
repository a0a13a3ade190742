package catalog

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SearchNotifier - fire-and-forget сигнал поисковому индексу через Redis Pub/Sub.
type SearchNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewSearchNotifier(rdb *redis.Client, channel string) *SearchNotifier {
	return &SearchNotifier{rdb: rdb, channel: channel}
}

func (n *SearchNotifier) RefreshBook(ctx context.Context, bookID int64) error {
	return n.rdb.Publish(ctx, n.channel, strconv.FormatInt(bookID, 10)).Err()
}

// ListenRefreshResilient - "живучая" подписка на сигналы переиндексации.
// Переподключается при обрыве, некорректные сигналы пропускает.
func ListenRefreshResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	onRefresh func(bookID int64),
) {
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				bookID, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil || bookID <= 0 {
					logger.Error("invalid refresh signal", zap.String("payload", msg.Payload))
					continue
				}
				onRefresh(bookID)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
