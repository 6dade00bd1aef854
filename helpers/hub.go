package helpers

import (
	"sync"

	"github.com/spooky-finn/go-lighter-cpty/domain/interfaces"
)

type hubEntry[T any] struct {
	ch chan T
}

// Hub fans values out to subscribers. Broadcast never blocks: a subscriber
// whose buffer is full misses the value.
type Hub[T any] struct {
	topic string
	mu    sync.RWMutex
	subs  map[*hubEntry[T]]struct{}
}

func NewHub[T any](topic string) *Hub[T] {
	return &Hub[T]{
		topic: topic,
		subs:  make(map[*hubEntry[T]]struct{}),
	}
}

func (h *Hub[T]) Subscribe(buffer int) *interfaces.Subscription[T] {
	entry := &hubEntry[T]{ch: make(chan T, buffer)}
	h.mu.Lock()
	h.subs[entry] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return &interfaces.Subscription[T]{
		Stream: entry.ch,
		Unsubscribe: func() {
			once.Do(func() { h.unsubscribe(entry) })
		},
		Topic: h.topic,
	}
}

func (h *Hub[T]) unsubscribe(entry *hubEntry[T]) {
	h.mu.Lock()
	delete(h.subs, entry)
	h.mu.Unlock()
	close(entry.ch)
}

// Broadcast returns how many subscribers dropped the value.
func (h *Hub[T]) Broadcast(value T) (dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for entry := range h.subs {
		select {
		case entry.ch <- value:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
