// Package feed implements push-based full-snapshot subscriptions. A
// producer publishes immutable snapshots; every subscriber receives each
// one and replaces its entire derived state. There is no diffing and no
// merge logic: the latest snapshot is always authoritative, and a slow
// consumer only ever skips stale intermediates, never the newest state.
package feed

import "sync"

// Feed fans one stream of snapshots out to any number of subscribers.
// Each subscriber owns a 1-buffered channel; when a new snapshot arrives
// before the previous one was consumed, the stale one is dropped and
// replaced (latest-wins).
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	last   T
	primed bool
	closed bool
}

func New[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a consumer. If a snapshot has already been published
// it is delivered immediately, so new observers start from current state.
// cancel unregisters the consumer and closes its channel.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan T, 1)
	if f.closed {
		close(ch)
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	if f.primed {
		ch <- f.last
	}

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers a snapshot to every subscriber, replacing any pending
// undelivered one.
func (f *Feed[T]) Publish(snapshot T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.last = snapshot
	f.primed = true
	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// Last returns the most recently published snapshot, if any.
func (f *Feed[T]) Last() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.primed
}

// Close terminates all subscriptions. Further Publish calls are dropped.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
