// Package matching implements the waiting queue that pairs participants
// for anonymous chat. The queue is FIFO with no duplicates; insertion order
// is the tie-break for matching. Each entry owns an expiry timer that hands
// the participant over to the AI fallback when no partner arrives in time.
package matching

import (
	"log"
	"sync"
	"time"
)

// DefaultExpiry is how long a participant waits before the queue gives up
// and redirects them to the AI fallback.
const DefaultExpiry = 20 * time.Second

// Outcome describes what TryMatch did for the requester.
type Outcome int

const (
	// OutcomeMatched: a partner was popped from the head of the queue.
	OutcomeMatched Outcome = iota
	// OutcomeEnqueued: the queue was empty, the requester was appended
	// and an expiry timer armed.
	OutcomeEnqueued
	// OutcomeStillSearching: the popped head was the requester itself
	// (reachable only through a race with an earlier enqueue); the entry
	// was re-appended and the requester keeps waiting.
	OutcomeStillSearching
)

// Queue is the in-memory waiting queue. All mutations happen under one
// mutex; expiry callbacks re-check a per-participant generation before
// acting so a stale fire never mutates state it no longer owns.
type Queue struct {
	mu       sync.Mutex
	order    []string
	timers   map[string]*time.Timer
	gens     map[string]uint64 // bumped on every removal, never deleted
	expiry   time.Duration
	onExpire func(id string) // invoked outside the lock
}

// NewQueue creates a queue with the given expiry duration. onExpire is
// called exactly once for an entry whose timer fires while it is still
// queued; it runs on the timer goroutine after the entry is removed.
func NewQueue(expiry time.Duration, onExpire func(id string)) *Queue {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Queue{
		timers:   make(map[string]*time.Timer),
		gens:     make(map[string]uint64),
		expiry:   expiry,
		onExpire: onExpire,
	}
}

// Enqueue appends id to the tail and arms its expiry timer. It returns
// false without side effects if the id is already queued.
func (q *Queue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexLocked(id) >= 0 {
		return false
	}
	q.enqueueLocked(id)
	return true
}

// TryMatch attempts to pair the requester with the head of the queue.
// On a valid pop the partner's expiry timer is cancelled and the partner
// id returned. See Outcome for the two non-matching results.
func (q *Queue) TryMatch(id string) (partner string, outcome Outcome) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.order) == 0 {
		q.enqueueLocked(id)
		return "", OutcomeEnqueued
	}

	head := q.order[0]
	if head == id {
		// Never pair a participant with themself: rotate the entry back
		// to the tail and degrade to enqueue semantics. The existing
		// timer keeps running.
		q.order = append(q.order[1:], id)
		return "", OutcomeStillSearching
	}

	q.order = q.order[1:]
	q.stopTimerLocked(head)
	log.Printf("[matcher] matched %s with %s (queue size: %d)", id, head, len(q.order))
	return head, OutcomeMatched
}

// Cancel removes id from the queue and cancels its timer. It is
// idempotent: cancelling a non-queued participant returns false and does
// nothing else.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return false
	}
	q.order = append(q.order[:i], q.order[i+1:]...)
	q.stopTimerLocked(id)
	log.Printf("[matcher] cancelled %s (queue size: %d)", id, len(q.order))
	return true
}

// Contains reports whether id is currently queued.
func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexLocked(id) >= 0
}

// List returns the queued ids in FIFO order.
func (q *Queue) List() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.order))
	copy(out, q.order)
	return out
}

// Len returns the number of queued participants.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

func (q *Queue) enqueueLocked(id string) {
	q.order = append(q.order, id)
	gen := q.gens[id]
	q.timers[id] = time.AfterFunc(q.expiry, func() { q.expire(id, gen) })
	log.Printf("[matcher] enqueued %s (queue size: %d)", id, len(q.order))
}

// stopTimerLocked cancels the pending timer for id and bumps its
// generation so an already-fired callback blocked on the mutex becomes a
// no-op.
func (q *Queue) stopTimerLocked(id string) {
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
	q.gens[id]++
}

// expire runs on the timer goroutine. It removes the entry and invokes
// onExpire only if the participant is still queued under the generation
// the timer was armed with.
func (q *Queue) expire(id string, gen uint64) {
	q.mu.Lock()
	if q.gens[id] != gen {
		q.mu.Unlock()
		return // left the queue by another path
	}
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return
	}
	q.order = append(q.order[:i], q.order[i+1:]...)
	q.stopTimerLocked(id)
	log.Printf("[matcher] expiry for %s after %s (queue size: %d)", id, q.expiry, len(q.order))
	cb := q.onExpire
	q.mu.Unlock()

	if cb != nil {
		cb(id)
	}
}

func (q *Queue) indexLocked(id string) int {
	for i, v := range q.order {
		if v == id {
			return i
		}
	}
	return -1
}
