package events

import (
	"sync"
	"sync/atomic"

	"github.com/kelindar/event"
)

// Feed collects events of one or more types into a single buffered channel
// for select-loop consumers such as SSE handlers. Publishing never blocks
// on a feed: events that find the channel full are dropped and counted.
type Feed struct {
	C <-chan any

	ch      chan any
	bus     *Bus
	dropped atomic.Uint64

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// NewFeed creates a feed with room for size pending events.
func NewFeed(bus *Bus, size int) *Feed {
	ch := make(chan any, size)
	return &Feed{C: ch, ch: ch, bus: bus}
}

// Follow adds events of type T to the feed. Following after Close is a no-op.
func Follow[T Event](f *Feed) *Feed {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return f
	}
	f.unsubs = append(f.unsubs, event.Subscribe(f.bus.dispatcher, func(e T) {
		select {
		case f.ch <- e:
		default:
			f.dropped.Add(1)
		}
	}))
	return f
}

// Dropped reports how many events were lost to a full channel.
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

// Close removes every subscription. C is left open so a late delivery
// cannot panic.
func (f *Feed) Close() {
	f.mu.Lock()
	unsubs := f.unsubs
	f.unsubs = nil
	f.closed = true
	f.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
