package usecase

import (
	"fmt"
	"sync"

	"KnowledgeScanner/internal/domain"
)

// ReviewQueue stages enriched entries awaiting approval in arrival order.
// Published and discarded entries leave the queue.
type ReviewQueue struct {
	mu      sync.Mutex
	entries []domain.QueueEntry
	// ids with a notification or publish in flight; never persisted
	claimed map[string]struct{}
}

// NewReviewQueue builds an empty queue.
func NewReviewQueue() *ReviewQueue {
	return &ReviewQueue{claimed: map[string]struct{}{}}
}

// Enqueue appends entry. An id already present in the queue is rejected.
func (q *ReviewQueue) Enqueue(entry domain.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(entry.SourceID) >= 0 {
		return fmt.Errorf("entry %s already queued", entry.SourceID)
	}
	if entry.State == "" {
		entry.State = domain.StateStaged
	}
	q.entries = append(q.entries, entry)
	return nil
}

// Pending returns a copy of all staged and notified entries, FIFO.
func (q *ReviewQueue) Pending() []domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.QueueEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.State.Pending() {
			out = append(out, e)
		}
	}
	return out
}

// Get returns a copy of the entry with id.
func (q *ReviewQueue) Get(id string) (domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexOf(id); i >= 0 {
		return q.entries[i], true
	}
	return domain.QueueEntry{}, false
}

// Update applies fn to the entry with id in place.
func (q *ReviewQueue) Update(id string, fn func(*domain.QueueEntry)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrEntryNotFound, id)
	}
	fn(&q.entries[i])
	return nil
}

// Remove deletes the entry with id and returns it.
func (q *ReviewQueue) Remove(id string) (domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 {
		return domain.QueueEntry{}, false
	}
	entry := q.entries[i]
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	delete(q.claimed, id)
	return entry, true
}

// Claim reserves a pending entry for one outbound call and returns its
// current copy. A missing entry, or one already claimed, is refused.
// Every successful Claim must be paired with Release.
func (q *ReviewQueue) Claim(id string) (domain.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 || !q.entries[i].State.Pending() {
		return domain.QueueEntry{}, false
	}
	if _, busy := q.claimed[id]; busy {
		return domain.QueueEntry{}, false
	}
	if q.claimed == nil {
		q.claimed = map[string]struct{}{}
	}
	q.claimed[id] = struct{}{}
	return q.entries[i], true
}

// Release drops the reservation taken by Claim.
func (q *ReviewQueue) Release(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.claimed, id)
}

// Len returns the number of queued entries.
func (q *ReviewQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *ReviewQueue) snapshot() []domain.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *ReviewQueue) restore(entries []domain.QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = q.entries[:0]
	q.claimed = map[string]struct{}{}
	for _, e := range entries {
		if !e.State.Pending() || q.indexOf(e.SourceID) >= 0 {
			continue
		}
		q.entries = append(q.entries, e)
	}
}

func (q *ReviewQueue) indexOf(id string) int {
	for i := range q.entries {
		if q.entries[i].SourceID == id {
			return i
		}
	}
	return -1
}
