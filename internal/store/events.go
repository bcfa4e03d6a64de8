/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package store

import (
	"sync"

	"scenevault/internal/domain"
)

// subscriptionBuffer is the per-subscriber channel depth. A subscriber that
// stops draining loses events rather than blocking mutations.
const subscriptionBuffer = 64

// Subscription is one listener on the vault's change-notification channel.
// Cancel unsubscribes and closes C.
type Subscription struct {
	C      <-chan domain.Change
	ch     chan domain.Change
	cancel func(*Subscription)
	once   sync.Once
}

// Cancel detaches the subscription. Safe to call multiple times.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.cancel(s) })
}

// eventBus fans change notifications out to subscribers. Sends never block:
// a full subscriber drops the event, mirroring the bounded-queue policy used
// for telemetry.
type eventBus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[*Subscription]struct{})}
}

func (b *eventBus) subscribe() *Subscription {
	ch := make(chan domain.Change, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, cancel: b.unsubscribe}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

func (b *eventBus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

func (b *eventBus) publish(ev domain.Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// drop if the subscriber is not keeping up
		}
	}
}

func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}
