package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryBroker - брокер в памяти с той же семантикой повторов и DLQ. Для тестов и dev-стенда.
type MemoryBroker struct {
	mu            sync.Mutex
	log           map[string][]Message
	groups        map[string]*memGroup // stream + "/" + group
	dead          map[string][]Message
	maxDeliveries int64
	seq           int64
}

type memGroup struct {
	queue  []Message
	notify chan struct{}
}

func NewMemoryBroker(maxDeliveries int64) *MemoryBroker {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &MemoryBroker{
		log:           make(map[string][]Message),
		groups:        make(map[string]*memGroup),
		dead:          make(map[string][]Message),
		maxDeliveries: maxDeliveries,
	}
}

func (b *MemoryBroker) Publish(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	msg := Message{ID: fmt.Sprintf("%d-0", b.seq), Stream: stream, Payload: append([]byte(nil), payload...)}
	b.log[stream] = append(b.log[stream], msg)
	for key, g := range b.groups {
		if strings.HasPrefix(key, stream+"/") {
			b.enqueue(g, msg)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, stream, group string, h Handler) error {
	g := b.group(stream, group)

	for {
		msg, ok := b.next(g)
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-g.notify:
				continue
			}
		}

		msg.Deliveries++
		if err := h(ctx, msg); err != nil {
			b.mu.Lock()
			if msg.Deliveries >= b.maxDeliveries {
				b.dead[stream] = append(b.dead[stream], msg)
			} else {
				b.enqueue(g, msg)
			}
			b.mu.Unlock()
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Published - всё, что было опубликовано в поток.
func (b *MemoryBroker) Published(stream string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.log[stream]...)
}

func (b *MemoryBroker) DeadLetters(stream string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.dead[stream]...)
}

// group создает группу и, как XGROUP CREATE ... 0, отдает ей весь накопленный поток.
func (b *MemoryBroker) group(stream, name string) *memGroup {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := stream + "/" + name
	if g, ok := b.groups[key]; ok {
		return g
	}
	g := &memGroup{notify: make(chan struct{}, 1)}
	b.groups[key] = g
	for _, m := range b.log[stream] {
		b.enqueue(g, m)
	}
	return g
}

func (b *MemoryBroker) enqueue(g *memGroup, m Message) {
	g.queue = append(g.queue, m)
	select {
	case g.notify <- struct{}{}:
	default:
	}
}

func (b *MemoryBroker) next(g *memGroup) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(g.queue) == 0 {
		return Message{}, false
	}
	m := g.queue[0]
	g.queue = g.queue[1:]
	return m, true
}
