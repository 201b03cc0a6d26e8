package vaultstate

import (
	"context"
	"sync"
)

// Observable is a hot, multicast stream that replays its latest value to new
// subscribers. Emission never blocks on slow consumers: each subscription
// conflates to the most recent value when its consumer lags.
type Observable[T any] interface {
	Subscribe() *Subscription[T]
}

// Subscription is one consumer's handle on an observable. Values are
// delivered on the channel returned by Values; Unsubscribe releases the
// subscription and closes the channel.
type Subscription[T any] struct {
	ch     chan T
	cancel func()
	once   sync.Once
}

// Values returns the delivery channel for this subscription.
func (s *Subscription[T]) Values() <-chan T { return s.ch }

// Unsubscribe detaches the subscription. Safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Subject is the write side of an Observable. It multicasts to all current
// subscriptions and retains the latest value for replay.
type Subject[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	latest T
	has    bool

	onActivate func()
	onIdle     func()
}

// SubjectOption configures a Subject at construction.
type SubjectOption[T any] func(*Subject[T])

// OnActivate registers a hook invoked when the subject gains its first
// subscriber after being idle.
func OnActivate[T any](fn func()) SubjectOption[T] {
	return func(s *Subject[T]) { s.onActivate = fn }
}

// OnIdle registers a hook invoked when the last subscriber detaches.
func OnIdle[T any](fn func()) SubjectOption[T] {
	return func(s *Subject[T]) { s.onIdle = fn }
}

// NewSubject constructs an empty Subject.
func NewSubject[T any](opts ...SubjectOption[T]) *Subject[T] {
	s := &Subject[T]{subs: map[*Subscription[T]]struct{}{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Next emits value to every current subscription and records it as the
// replay value.
func (s *Subject[T]) Next(value T) {
	s.mu.Lock()
	s.latest = value
	s.has = true
	for sub := range s.subs {
		deliver(sub.ch, value)
	}
	s.mu.Unlock()
}

// Latest returns the most recent emission, if any.
func (s *Subject[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.has
}

// Forget drops the retained replay value without notifying subscribers. New
// subscriptions created afterwards wait for the next emission.
func (s *Subject[T]) Forget() {
	s.mu.Lock()
	var zero T
	s.latest = zero
	s.has = false
	s.mu.Unlock()
}

// Len reports the current subscriber count.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscribe implements Observable. The latest value, when present, is
// delivered immediately.
func (s *Subject[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{ch: make(chan T, 1)}
	sub.cancel = func() { s.remove(sub) }

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	if s.has {
		deliver(sub.ch, s.latest)
	}
	first := len(s.subs) == 1
	activate := s.onActivate
	s.mu.Unlock()

	// Hooks run outside the lock so they may emit synchronously.
	if first && activate != nil {
		activate()
	}
	return sub
}

func (s *Subject[T]) remove(sub *Subscription[T]) {
	s.mu.Lock()
	_, ok := s.subs[sub]
	if ok {
		delete(s.subs, sub)
		close(sub.ch)
	}
	idle := ok && len(s.subs) == 0
	onIdle := s.onIdle
	s.mu.Unlock()

	if idle && onIdle != nil {
		onIdle()
	}
}

// deliver sends without blocking: when the subscriber's buffer is full the
// stale value is replaced so the consumer always observes the latest state.
func deliver[T any](ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// FirstValue blocks until src emits, returning that value. The context bounds
// the wait.
func FirstValue[T any](ctx context.Context, src Observable[T]) (T, error) {
	sub := src.Subscribe()
	defer sub.Unsubscribe()
	select {
	case value := <-sub.Values():
		return value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Map derives a read-only observable by applying fn to each emission of src.
// Each subscription holds its own upstream subscription; replay semantics
// follow the source.
func Map[A, B any](src Observable[A], fn func(A) B) Observable[B] {
	return mapped[A, B]{src: src, fn: fn}
}

type mapped[A, B any] struct {
	src Observable[A]
	fn  func(A) B
}

func (m mapped[A, B]) Subscribe() *Subscription[B] {
	upstream := m.src.Subscribe()
	sub := &Subscription[B]{ch: make(chan B, 1)}
	done := make(chan struct{})
	sub.cancel = func() {
		close(done)
		upstream.Unsubscribe()
	}

	go func() {
		defer close(sub.ch)
		for {
			select {
			case value, ok := <-upstream.Values():
				if !ok {
					return
				}
				deliver(sub.ch, m.fn(value))
			case <-done:
				return
			}
		}
	}()
	return sub
}
