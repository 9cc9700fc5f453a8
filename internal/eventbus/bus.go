// Package eventbus fans the adapter's update stream out to independent
// consumers (command router, membership reconciler) so a slow consumer never
// stalls the others.
package eventbus

import (
	"sync"
	"sync/atomic"

	"relaybot/internal/transport"
)

// Bus is a simple in-memory fanout.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop updates (bounded backpressure); drops are
//     counted and readable via Dropped().
type Bus interface {
	Publish(u transport.Update)
	Subscribe(buffer int) (ch <-chan transport.Update, unsubscribe func())
	Dropped() uint64
}

// New returns a fanout bus. It owns no background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan transport.Update{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan transport.Update
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(u transport.Update) {
	// Snapshot subscribers so Publish doesn't hold the lock while sending.
	b.mu.RLock()
	chs := make([]chan transport.Update, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		select {
		case ch <- u:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan transport.Update, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan transport.Update, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if cur, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(cur)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
