package core

// broadcast.go — the best-effort live-log fan-out sink (spec.md §4.5):
// writes are single-producer per worker but multi-consumer (spec.md §5).
// A slow or absent subscriber never blocks a worker.
//
// Grounded on core/liquidity_pools.go's logger field threaded through the
// AMM singleton (process-wide, shared, never blocking the caller on error)
// generalized from a *log.Logger sink to a channel-based pub/sub sink.

import (
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind has each new event silently dropped (the
// already-buffered events are kept) rather than blocking the publishing
// worker (spec.md §4.5:
// "failure never blocks a worker").
const subscriberBuffer = 256

// BroadcastSink fans out BotLog events to any number of subscribers.
type BroadcastSink struct {
	mu          sync.RWMutex
	subscribers map[int]chan BotLog
	nextID      int
}

// NewBroadcastSink constructs an empty sink.
func NewBroadcastSink() *BroadcastSink {
	return &BroadcastSink{subscribers: make(map[int]chan BotLog)}
}

// Subscribe registers a new consumer and returns its channel plus an
// unsubscribe function.
func (b *BroadcastSink) Subscribe() (<-chan BotLog, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan BotLog, subscriberBuffer)
	b.subscribers[id] = ch
	return ch, func() { b.unsubscribe(id) }
}

func (b *BroadcastSink) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish fans l out to every current subscriber without blocking; a full
// subscriber channel drops the event rather than stalling the caller.
func (b *BroadcastSink) Publish(l BotLog) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- l:
		default:
		}
	}
}

// Close tears down every subscriber channel.
func (b *BroadcastSink) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
