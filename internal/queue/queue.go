// Package queue provides inbound queue of the module. Every module has a
// single inbox, but capacity and overflow policy are defined per edge, so
// messages of a single edge are always delivered in FIFO order.
package queue

import (
	"sync"
)

// Overflow defines what happens when edge capacity is reached.
type Overflow int

const (
	// Block causes producer to wait until consumer reads a message of
	// the same edge.
	Block Overflow = iota
	// DropOldest discards the oldest unread message of the same edge.
	DropOldest
)

func (o Overflow) String() string {
	switch o {
	case Block:
		return "block"
	case DropOldest:
		return "drop-oldest"
	}
	return "unknown"
}

// Policy of a single edge. Zero capacity means unbounded edge.
type Policy struct {
	Capacity int
	Overflow Overflow
}

// Bounded returns true if capacity is limited.
func (p Policy) Bounded() bool {
	return p.Capacity > 0
}

type item[T any] struct {
	edge  string
	value T
}

// Inbox is a multi-producer, single-consumer queue.
type Inbox[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []item[T]
	counts   map[string]int
	policies map[string]Policy
	fallback Policy
	closed   bool
	onDrop   func(edge string, v T)
}

// New returns inbox with default edge policy. onDrop is called for every
// discarded message, it can be nil.
func New[T any](fallback Policy, onDrop func(edge string, v T)) *Inbox[T] {
	q := Inbox[T]{
		counts:   make(map[string]int),
		policies: make(map[string]Policy),
		fallback: fallback,
		onDrop:   onDrop,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return &q
}

// SetPolicy overrides the policy for provided edge.
func (q *Inbox[T]) SetPolicy(edge string, p Policy) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.policies[edge] = p
}

// Policy returns effective policy of the edge.
func (q *Inbox[T]) Policy(edge string) Policy {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.policy(edge)
}

func (q *Inbox[T]) policy(edge string) Policy {
	if p, ok := q.policies[edge]; ok {
		return p
	}
	return q.fallback
}

// Push puts the value into inbox. Under block policy it waits while edge
// is full. False is returned if inbox is closed, value is not queued in
// that case.
func (q *Inbox[T]) Push(edge string, v T) bool {
	var (
		dropped item[T]
		drop    bool
	)
	q.mu.Lock()
	p := q.policy(edge)
	if p.Bounded() {
		switch p.Overflow {
		case Block:
			for !q.closed && q.counts[edge] >= p.Capacity {
				q.notFull.Wait()
			}
		case DropOldest:
			if q.counts[edge] >= p.Capacity {
				dropped, drop = q.removeOldest(edge)
			}
		}
	}
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item[T]{edge: edge, value: v})
	q.counts[edge]++
	q.notEmpty.Signal()
	q.mu.Unlock()

	if drop && q.onDrop != nil {
		q.onDrop(dropped.edge, dropped.value)
	}
	return true
}

// Pop waits for the next value. False is returned when inbox is closed and
// empty.
func (q *Inbox[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	it := q.items[0]
	q.items[0] = item[T]{}
	q.items = q.items[1:]
	q.counts[it.edge]--
	q.notFull.Broadcast()
	return it.value, true
}

// Len returns number of queued values.
func (q *Inbox[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close prevents new values from being pushed. Queued values are still
// returned by Pop. Blocked producers are released.
func (q *Inbox[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}

// Discard closes the inbox and drops all queued values.
func (q *Inbox[T]) Discard() {
	q.mu.Lock()
	q.closed = true
	items := q.items
	q.items = nil
	q.counts = make(map[string]int)
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()

	if q.onDrop == nil {
		return
	}
	for _, it := range items {
		q.onDrop(it.edge, it.value)
	}
}

// removeOldest must be called with the lock held.
func (q *Inbox[T]) removeOldest(edge string) (item[T], bool) {
	for i := range q.items {
		if q.items[i].edge == edge {
			it := q.items[i]
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.counts[edge]--
			return it, true
		}
	}
	return item[T]{}, false
}
