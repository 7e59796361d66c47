// Package events dispatches domain events synchronously to subscribed handlers.
//
// Handlers run on the publisher's goroutine, one after the other, in subscription order. A
// handler may publish further events or change subscriptions; the subscription table is
// snapshotted before dispatch so such changes apply from the next Publish on.
package events

import (
	"context"
	"sync"

	"github.com/smartcontractkit/safe-wallet-framework/pkg/logger"
)

// Event is a named domain event.
type Event interface {
	EventName() string
}

// Handler handles a published event.
type Handler func(ctx context.Context, event Event)

// SubscriptionID identifies a subscription. IDs are never reused by a Bus.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	name    string
	handler Handler
}

// Bus is a synchronous publish/subscribe dispatcher. The zero value is not usable, use
// NewBus.
type Bus struct {
	lggr logger.Logger

	mu     sync.Mutex
	nextID SubscriptionID
	subs   []subscription
}

// NewBus returns an empty Bus.
func NewBus(lggr logger.Logger) *Bus {
	return &Bus{lggr: lggr.Named("events")}
}

// Subscribe registers handler for events named name and returns the handle to unsubscribe
// it.
func (b *Bus) Subscribe(name string, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, name: name, handler: handler})

	return b.nextID
}

// Unsubscribe removes the subscriptions with the given ids. Unknown ids are ignored.
func (b *Bus) Unsubscribe(ids ...SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subs[:0]
	for _, s := range b.subs {
		if !containsID(ids, s.id) {
			kept = append(kept, s)
		}
	}
	clear(b.subs[len(kept):])
	b.subs = kept
}

// Publish calls every handler subscribed to the event name and returns when all of them
// have returned.
func (b *Bus) Publish(ctx context.Context, event Event) {
	name := event.EventName()

	b.mu.Lock()
	var handlers []Handler
	for _, s := range b.subs {
		if s.name == name {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.Unlock()

	b.lggr.Debugw("Publishing event", "event", name, "handlers", len(handlers))
	for _, h := range handlers {
		h(ctx, event)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

func containsID(ids []SubscriptionID, id SubscriptionID) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}

	return false
}
