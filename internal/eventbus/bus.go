// Package eventbus provides a fan-out broadcast with one queue per subscriber.
//
// Every subscriber chooses how it tolerates a slow consumer: Block subscribers
// never miss a value (the publisher waits for room), DropNewest subscribers
// never slow the publisher down and lose values when their queue is full.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Policy decides what Publish does when a subscriber queue is full.
type Policy int

const (
	// DropNewest discards the value for that subscriber only.
	DropNewest Policy = iota
	// Block waits until the subscriber has room, the subscriber goes away,
	// the bus closes or the publish context ends.
	Block
)

func (p Policy) String() string {
	if p == Block {
		return "block"
	}
	return "drop"
}

// DefaultQueueSize is used when Subscribe is called with size <= 0.
const DefaultQueueSize = 100

// Subscription is one subscriber's queue.
type Subscription[T any] struct {
	name    string
	policy  Policy
	ch      chan T
	bus     *Bus[T]
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// C returns the receive side of the queue. It is never closed; select on
// Done to learn that the subscription ended.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Done is closed when the subscription is cancelled or the bus closes.
func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

// Name returns the subscriber name used in logs.
func (s *Subscription[T]) Name() string { return s.name }

// Dropped returns how many values this subscriber lost.
func (s *Subscription[T]) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.bus.remove(s)
	s.end()
}

func (s *Subscription[T]) end() {
	s.once.Do(func() { close(s.done) })
}

// Bus broadcasts values of type T to every current subscriber.
type Bus[T any] struct {
	name string

	mu   sync.RWMutex
	subs map[*Subscription[T]]struct{}

	// Shutdown signaling - closing this channel releases blocked publishers
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a bus. The name only appears in logs.
func New[T any](name string) *Bus[T] {
	return &Bus[T]{
		name:    name,
		subs:    make(map[*Subscription[T]]struct{}),
		closing: make(chan struct{}),
	}
}

// Subscribe registers a new subscriber queue.
func (b *Bus[T]) Subscribe(name string, size int, policy Policy) *Subscription[T] {
	if size <= 0 {
		size = DefaultQueueSize
	}
	s := &Subscription[T]{
		name:   name,
		policy: policy,
		ch:     make(chan T, size),
		bus:    b,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.closing:
		s.end()
		return s
	default:
	}
	b.subs[s] = struct{}{}

	log.Trace().
		Str("bus", b.name).
		Str("subscriber", name).
		Str("policy", policy.String()).
		Int("queue_size", size).
		Msg("Subscribed")
	return s
}

func (b *Bus[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscribers returns the current subscriber count.
func (b *Bus[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers v to every subscriber according to its policy.
func (b *Bus[T]) Publish(ctx context.Context, v T) {
	b.mu.RLock()
	subs := make([]*Subscription[T], 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if s.policy == Block {
			select {
			case s.ch <- v:
			case <-s.done:
			case <-b.closing:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case s.ch <- v:
		default:
			// Queue full - drop for this subscriber only. Warn at 1, 2, 4, 8...
			n := s.dropped.Add(1)
			if n&(n-1) != 0 {
				continue
			}
			log.Warn().
				Str("bus", b.name).
				Str("subscriber", s.name).
				Uint64("dropped", n).
				Msg("Subscriber queue full, dropping event")
		}
	}
}

// Close ends every subscription and releases blocked publishers.
func (b *Bus[T]) Close() {
	b.closeOnce.Do(func() {
		close(b.closing)
	})

	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription[T]]struct{})
	b.mu.Unlock()

	for s := range subs {
		s.end()
	}
}
