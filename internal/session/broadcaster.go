// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package session

import "sync"

// broadcaster fans State snapshots out to subscribers. Each subscriber has a
// one-slot buffer holding the newest undelivered snapshot; publishing never
// blocks.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan State
	nextID int
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan State)}
}

// subscribe registers a subscriber primed with initial.
func (b *broadcaster) subscribe(initial State) (<-chan State, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan State, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- initial
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// publish replaces each subscriber's pending snapshot with s.
func (b *broadcaster) publish(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- s.clone():
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.clone():
		default:
		}
	}
}

// close closes every subscriber channel.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
