package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

// Ledger owns the durable lifecycle of the dedup store and the review queue.
type Ledger struct {
	store  ports.StateStore
	dedup  *DedupStore
	queue  *ReviewQueue
	logger *slog.Logger

	flushMu sync.Mutex
}

// NewLedger wires a state store with fresh in-memory structures.
func NewLedger(store ports.StateStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		dedup:  NewDedupStore(),
		queue:  NewReviewQueue(),
		logger: logger,
	}
}

// Dedup exposes the dedup store.
func (l *Ledger) Dedup() *DedupStore { return l.dedup }

// Queue exposes the review queue.
func (l *Ledger) Queue() *ReviewQueue { return l.queue }

// Load restores persisted state. Unreadable or corrupt state is logged and
// the ledger starts empty.
func (l *Ledger) Load(ctx context.Context) {
	if l.store == nil {
		return
	}
	state, err := l.store.Load(ctx)
	if err != nil {
		l.logger.WarnContext(ctx, "state unreadable, starting empty", "error", err)
		l.dedup.restore(nil, nil)
		l.queue.restore(nil)
		return
	}
	l.dedup.restore(state.Seen, state.LastPollAt)
	l.queue.restore(state.Queue)
	l.logger.InfoContext(ctx, "state loaded", "seen", l.dedup.Len(), "queued", l.queue.Len())
}

// Flush writes the current dedup record and queue atomically.
func (l *Ledger) Flush(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	seen, last := l.dedup.snapshot()
	state := domain.PersistedState{
		Version:    domain.CurrentStateVersion,
		Seen:       seen,
		LastPollAt: last,
		Queue:      l.queue.snapshot(),
	}
	if err := l.store.Save(ctx, state); err != nil {
		return fmt.Errorf("%w: flush state: %v", domain.ErrPersistence, err)
	}
	return nil
}
