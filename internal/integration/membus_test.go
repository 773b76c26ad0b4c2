package integration_test

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cinetick/cinema-ticket-reservation/internal/broker"
)

// memBus is an in-process Bus: published payloads queue per topic and
// Consume drains the queue. It carries the same JSON envelopes as the
// REST proxy, so the full publish-consume-handle chain runs without a
// broker container.
type memBus struct {
	mu     sync.Mutex
	queues map[string][]broker.Message
	offset int64
}

func newMemBus() *memBus {
	return &memBus{
		queues: make(map[string][]broker.Message),
	}
}

func (b *memBus) Publish(ctx context.Context, topic string, payload any) bool {
	value, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.offset++
	b.queues[topic] = append(b.queues[topic], broker.Message{
		Value:  value,
		Offset: b.offset,
	})

	return true
}

func (b *memBus) Consume(ctx context.Context, topic, group string) ([]broker.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	messages := b.queues[topic]
	b.queues[topic] = nil
	return messages, nil
}

func (b *memBus) pending(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[topic])
}
