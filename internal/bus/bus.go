// Package bus implements the process-wide market-data fan-out: three
// broadcast topics (candles_1h, candles_4h, order_book) that many strategy
// tasks subscribe to and many feed tasks publish into.
//
// Modeled on the teacher's channel-per-consumer fan-out in
// internal/strategy/engine.go, generalized to broadcast (many producers are
// not needed there since the engine owns a single signal channel, but the
// "non-blocking send, drop on a full buffer" idiom is the same one used
// here for backpressure).
package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// ringCapacity is the bounded channel size per subscriber, matching
// spec.md §4.2's ring capacity of 256.
const ringCapacity = 256

// Subscription is a single subscriber's view of a Topic. A send that finds
// the subscriber's buffer full drops the oldest buffered event and pushes
// the new one, incrementing Lag — the subscriber is never allowed to block
// a publisher.
type Subscription[T any] struct {
	ch  chan T
	lag *int64
}

// C returns the channel to receive from.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Lag returns the total number of events dropped for this subscriber since
// it subscribed. The count is never reset.
func (s *Subscription[T]) Lag() int64 { return atomic.LoadInt64(s.lag) }

// Topic is a single broadcast channel: one send fans out to every
// currently-subscribed receiver; a send with zero receivers is a no-op.
type Topic[T any] struct {
	mu   sync.Mutex
	subs map[*Subscription[T]]struct{}
}

// NewTopic returns an empty, ready-to-use Topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a new receiver. The subscription only sees events
// published after Subscribe returns. Call Unsubscribe (or let ctx end and
// call Unsubscribe from a defer) to stop receiving and release the buffer.
func (t *Topic[T]) Subscribe(_ context.Context) *Subscription[T] {
	sub := &Subscription[T]{
		ch:  make(chan T, ringCapacity),
		lag: new(int64),
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription from the fan-out. Safe to call more
// than once.
func (t *Topic[T]) Unsubscribe(sub *Subscription[T]) {
	t.mu.Lock()
	delete(t.subs, sub)
	t.mu.Unlock()
}

// Publish delivers event to every current subscriber without blocking. A
// subscriber whose buffer is full has its oldest buffered event evicted to
// make room; this is the "skip to newest, observe lag" behavior spec.md
// §4.2 requires of a slow consumer.
func (t *Topic[T]) Publish(event T) {
	t.mu.Lock()
	subs := make([]*Subscription[T], 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
			// Buffer full: evict the oldest entry, then retry once. If a
			// concurrent receive already drained the slot, the retry send
			// succeeds immediately; if the buffer refilled in the
			// meantime, we still count this as one dropped event rather
			// than spin.
			select {
			case <-s.ch:
				atomic.AddInt64(s.lag, 1)
			default:
			}
			select {
			case s.ch <- event:
			default:
				atomic.AddInt64(s.lag, 1)
			}
		}
	}
}

// Bus is the process-wide value holding the three fan-out channels spec.md
// §4.2 names. Ordering is strict FIFO per channel per subscriber; there is
// no ordering guarantee across the three channels.
type Bus struct {
	Candles1h *Topic[CandleEvent]
	Candles4h *Topic[CandleEvent]
	OrderBook *Topic[OrderBookEvent]
}

// New returns a ready-to-use Bus with all three topics initialized.
func New() *Bus {
	return &Bus{
		Candles1h: NewTopic[CandleEvent](),
		Candles4h: NewTopic[CandleEvent](),
		OrderBook: NewTopic[OrderBookEvent](),
	}
}
