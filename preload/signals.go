package preload

import (
	"sync"
	"time"
)

// EventKind names the two lifecycle signals.
type EventKind int

const (
	// EventCompleted fires once on successful preload, carrying the elapsed
	// duration.
	EventCompleted EventKind = iota

	// EventFailed fires once on preload failure, carrying the error message.
	EventFailed
)

// Event is one lifecycle signal.
type Event struct {
	Kind    EventKind
	Elapsed time.Duration
	Error   string
}

// SignalBus fans lifecycle events out to any interested subscriber.
// Emission never blocks: a subscriber that is not draining its channel misses
// the event rather than stalling the controller.
type SignalBus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewSignalBus creates an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func removes it.
func (b *SignalBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 1)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *SignalBus) emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
