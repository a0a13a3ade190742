package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "novel"
)

// Streams шины модерации (at-least-once, consumer groups)
const (
	StreamAuditRequests = RedisNamespace + ":audit:requests"
	StreamAuditResults  = RedisNamespace + ":audit:results"
)

// Каналы Pub/Sub (fire-and-forget события)
const (
	// RedisChanSearchRefresh - сигнал поисковому индексу переиндексировать книгу.
	RedisChanSearchRefresh = RedisNamespace + ":search:refresh"
)

// Группы потребителей
const (
	GroupModerationWorkers = "moderation-workers"
	GroupCatalogResults    = "catalog-results"
)

// DeadLetterStream - куда уезжают сообщения, исчерпавшие попытки доставки.
func DeadLetterStream(stream string) string {
	return fmt.Sprintf("%s:dlq", stream)
}
