// Package bus implements the engine's bounded message buses. Each bus type
// models one of the backpressure policies the pipeline needs: block the
// producer, block it briefly then reject, or drop the oldest queued item.
// None of these rely on implicit channel buffering beyond the capacity the
// caller asks for — the full-policy is always explicit.
package bus

import (
	"context"
	"sync"
	"time"

	"tradingengine/pkg/types"
)

// MdBus fans MdTicks out by symbol with a newest-preferred, drop-oldest
// backpressure policy: a full per-symbol queue drops its oldest pending tick
// to make room rather than blocking the feed or dropping the new tick.
// Market data is stale-tolerant, so losing an old tick is preferable to
// losing the newest one or stalling ingestion.
type MdBus struct {
	mu    sync.Mutex
	cap   int
	chans map[string]chan types.MdTick
}

// NewMdBus creates an MdBus with the given per-symbol queue capacity.
func NewMdBus(capacity int) *MdBus {
	return &MdBus{cap: capacity, chans: make(map[string]chan types.MdTick)}
}

func (b *MdBus) chanFor(symbol string) chan types.MdTick {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.chans[symbol]
	if !ok {
		ch = make(chan types.MdTick, b.cap)
		b.chans[symbol] = ch
	}
	return ch
}

// Publish delivers a tick for its symbol, dropping the oldest queued tick
// for that symbol if the queue is full.
func (b *MdBus) Publish(tick types.MdTick) {
	ch := b.chanFor(tick.Symbol)
	for {
		select {
		case ch <- tick:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns the receive channel for one symbol, creating it if this
// is the first subscriber for that symbol.
func (b *MdBus) Subscribe(symbol string) <-chan types.MdTick {
	return b.chanFor(symbol)
}

// Blocking is a bus whose producers block when the queue is full — used for
// SigBus and OrdBus, where signals and orders are precious enough that a
// slow consumer should throttle the producer rather than lose data.
type Blocking[T any] struct {
	ch chan T
}

// NewBlocking creates a Blocking bus with the given queue capacity.
func NewBlocking[T any](capacity int) *Blocking[T] {
	return &Blocking[T]{ch: make(chan T, capacity)}
}

// Send enqueues v, blocking until there is room or ctx is cancelled.
func (b *Blocking[T]) Send(ctx context.Context, v T) error {
	select {
	case b.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Chan returns the receive side.
func (b *Blocking[T]) Chan() <-chan T {
	return b.ch
}

// Venue is a bus that blocks the producer up to a fixed timeout, then
// reports congestion instead of blocking indefinitely — used for per-venue
// order queues, where a stuck gateway must not stall the router forever.
type Venue[T any] struct {
	ch      chan T
	timeout time.Duration
}

// NewVenue creates a Venue bus with the given capacity and block timeout.
func NewVenue[T any](capacity int, timeout time.Duration) *Venue[T] {
	return &Venue[T]{ch: make(chan T, capacity), timeout: timeout}
}

// TrySend attempts to enqueue v, blocking up to the configured timeout.
// Returns false (congested) if the timeout elapses or ctx is cancelled first.
func (b *Venue[T]) TrySend(ctx context.Context, v T) bool {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case b.ch <- v:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Chan returns the receive side.
func (b *Venue[T]) Chan() <-chan T {
	return b.ch
}

// DropOldest is a bus that never blocks the producer: when full, it evicts
// the oldest queued item to make room for the new one. Used for the
// recorder's audit queue, where durability of the very latest event beats
// durability of a stale one.
type DropOldest[T any] struct {
	ch chan T
}

// NewDropOldest creates a DropOldest bus with the given capacity.
func NewDropOldest[T any](capacity int) *DropOldest[T] {
	return &DropOldest[T]{ch: make(chan T, capacity)}
}

// Publish enqueues v, dropping the oldest queued item if the queue is full.
// Reports whether an item had to be dropped to make room.
func (b *DropOldest[T]) Publish(v T) (dropped bool) {
	for {
		select {
		case b.ch <- v:
			return dropped
		default:
		}
		select {
		case <-b.ch:
			dropped = true
		default:
		}
	}
}

// Chan returns the receive side.
func (b *DropOldest[T]) Chan() <-chan T {
	return b.ch
}
