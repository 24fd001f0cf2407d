package usecase

import (
	"sync"
	"time"
)

// DedupStore is the set of item ids already accepted into the pipeline.
// Its durable lifecycle (load at startup, flush after mutation) is driven
// by Ledger.
type DedupStore struct {
	mu         sync.RWMutex
	seen       map[string]struct{}
	order      []string
	lastPollAt *time.Time
}

// NewDedupStore builds an empty store.
func NewDedupStore() *DedupStore {
	return &DedupStore{seen: map[string]struct{}{}}
}

// Has reports whether id was already recorded.
func (d *DedupStore) Has(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.seen[id]
	return ok
}

// MarkSeen records id. Marking an id twice is a no-op.
func (d *DedupStore) MarkSeen(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
}

// Len returns the number of recorded ids.
func (d *DedupStore) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// LastPoll returns the start time of the last fully successful poll cycle.
func (d *DedupStore) LastPoll() *time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lastPollAt == nil {
		return nil
	}
	t := *d.lastPollAt
	return &t
}

// SetLastPoll moves the last-poll watermark.
func (d *DedupStore) SetLastPoll(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t = t.UTC()
	d.lastPollAt = &t
}

func (d *DedupStore) snapshot() ([]string, *time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	var last *time.Time
	if d.lastPollAt != nil {
		t := *d.lastPollAt
		last = &t
	}
	return ids, last
}

func (d *DedupStore) restore(ids []string, last *time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{}, len(ids))
	d.order = d.order[:0]
	for _, id := range ids {
		if _, ok := d.seen[id]; ok {
			continue
		}
		d.seen[id] = struct{}{}
		d.order = append(d.order, id)
	}
	d.lastPollAt = last
}
