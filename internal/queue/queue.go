// Package queue provides a duplicate-suppressing FIFO used for the
// session's new, review and failed card queues.
package queue

import "sync"

// ItemQueue is an ordered sequence with admission control: an id may be
// present at most once. Adding an item whose id is already queued is a no-op,
// which prevents the same card from being scheduled twice.
type ItemQueue[T any] struct {
	mu       sync.Mutex
	items    []T
	ids      map[string]struct{}
	dequeues int
}

// New creates an empty ItemQueue.
func New[T any]() *ItemQueue[T] {
	return &ItemQueue[T]{ids: make(map[string]struct{})}
}

// Add appends item to the back of the queue if id is not already present.
// Returns true if the item was admitted.
func (q *ItemQueue[T]) Add(item T, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.ids[id]; exists {
		return false
	}
	q.ids[id] = struct{}{}
	q.items = append(q.items, item)
	return true
}

// Dequeue pops the front item. If release is non-nil it is used to extract
// the item's id, which is freed so the same id can be re-added later. A nil
// release keeps the id reserved.
func (q *ItemQueue[T]) Dequeue(release func(T) string) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.dequeues++
	if release != nil {
		delete(q.ids, release(item))
	}
	return item, true
}

// Peek returns the item at position i without removing it.
func (q *ItemQueue[T]) Peek(i int) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if i < 0 || i >= len(q.items) {
		return zero, false
	}
	return q.items[i], true
}

// Len returns the number of queued items.
func (q *ItemQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dequeues returns the monotonic count of dequeue operations, used for
// session reporting.
func (q *ItemQueue[T]) Dequeues() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeues
}

// Contains reports whether id is currently reserved in the queue.
func (q *ItemQueue[T]) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.ids[id]
	return ok
}

// Release frees an id without touching the item order. Used when an item was
// dequeued with a nil release and later abandoned.
func (q *ItemQueue[T]) Release(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.ids, id)
}

// Replace atomically swaps the queue contents for items, rebuilding the id
// set with the given extractor. Duplicate ids within items keep the first
// occurrence.
func (q *ItemQueue[T]) Replace(items []T, id func(T) string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
	q.ids = make(map[string]struct{}, len(items))
	for _, item := range items {
		key := id(item)
		if _, exists := q.ids[key]; exists {
			continue
		}
		q.ids[key] = struct{}{}
		q.items = append(q.items, item)
	}
}

// Snapshot returns a copy of the queued items in order.
func (q *ItemQueue[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}
