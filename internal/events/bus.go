package events

import (
	"context"
	"slices"
	"sync"

	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
)

// Bus fans session events out to in-process subscribers.
//
// A subscription names the type it wants: a concrete event struct, or Event
// itself to see everything. Publish hands the event to each matching
// subscriber in registration order and waits until it is accepted or ctx is
// done, so a slow reader slows the watcher instead of missing a rebuild.
//
// Unsubscribing while a Publish is blocked on that subscriber is safe: the
// pending delivery is abandoned and the channel is closed afterwards.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
	closed bool
}

type subscription struct {
	id  uint64
	key any
	// offer delivers evt if the subscription's type matches it.
	offer func(ctx context.Context, evt Event) error

	// senders hold the read lock while delivering; closing the channel takes
	// the write lock after quit has released them.
	sending  sync.RWMutex
	quit     chan struct{}
	quitOnce sync.Once
	finish   func()
}

func (s *subscription) stop() {
	s.quitOnce.Do(func() {
		close(s.quit)
		s.sending.Lock()
		s.finish()
		s.sending.Unlock()
	})
}

// NewBus returns an open Bus.
func NewBus() *Bus {
	return &Bus{}
}

// typeKey identifies T without reflection; typed nil pointers compare equal
// exactly when their types match.
func typeKey[T Event]() any { return (*T)(nil) }

// Subscribe registers for events of type T. It returns a channel with the
// given buffer and an idempotent unsubscribe function that closes it. On a
// closed bus the channel is returned already closed.
func Subscribe[T Event](b *Bus, buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)
	sub := &subscription{
		key:    typeKey[T](),
		quit:   make(chan struct{}),
		finish: func() { close(ch) },
	}
	sub.offer = func(ctx context.Context, evt Event) error {
		v, ok := evt.(T)
		if !ok {
			return nil
		}
		sub.sending.RLock()
		defer sub.sending.RUnlock()
		select {
		case <-sub.quit:
			return nil
		default:
		}
		select {
		case ch <- v:
			return nil
		case <-sub.quit:
			return nil
		case <-ctx.Done():
			return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event delivery canceled").
				WithContext("event", evt.EventName()).
				Build()
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.stop()
		return ch, func() {}
	}
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return ch, func() {
		b.remove(sub.id)
		sub.stop()
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = slices.DeleteFunc(b.subs, func(s *subscription) bool { return s.id == id })
}

// SubscriberCount reports how many live subscriptions were made for exactly T.
func SubscriberCount[T Event](b *Bus) int {
	if b == nil {
		return 0
	}
	key := typeKey[T]()
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.key == key {
			n++
		}
	}
	return n
}

// Publish delivers evt to every matching subscriber. Publishing on a nil bus
// is a no-op; publishing on a closed bus is an error.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if b == nil {
		return nil
	}
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ferrors.RuntimeError("event bus is closed").Build()
	}
	targets := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.offer(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close rejects further publishing and closes every subscription channel.
// Events already buffered stay readable.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}
