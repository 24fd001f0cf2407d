package ports

import (
	"context"
	"time"

	"KnowledgeScanner/internal/domain"
)

// Query narrows a listing call on a source connector.
type Query struct {
	Filter string
	Limit  int
	Since  *time.Time
}

// SourceConnector lists and fetches items from an inbox or tracker.
type SourceConnector interface {
	List(ctx context.Context, q Query) ([]domain.ItemRef, error)
	Fetch(ctx context.Context, id string) (domain.Item, error)
}

// ItemSource aggregates every configured connector into one listing.
type ItemSource interface {
	ListCandidates(ctx context.Context, since *time.Time) ([]domain.ItemRef, error)
	FetchDetail(ctx context.Context, ref domain.ItemRef) (domain.Item, error)
}

// StateStore persists the dedup record and review queue as one envelope.
type StateStore interface {
	Load(ctx context.Context) (domain.PersistedState, error)
	Save(ctx context.Context, state domain.PersistedState) error
}

// Summarizer turns raw content into a summary via a text-generation backend.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (string, error)
}

// TicketLookup resolves a ticket key against the tracker. A nil ticket with
// nil error means the key did not resolve.
type TicketLookup interface {
	LookupTicket(ctx context.Context, key string) (*domain.Ticket, error)
}

// Notifier sends a review request to a single recipient.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Publisher writes an approved page to the knowledge base.
type Publisher interface {
	Publish(ctx context.Context, page domain.Page) (string, error)
}

// PageRenderer converts a queue entry to knowledge-base markup.
type PageRenderer interface {
	Render(entry domain.QueueEntry) (string, error)
}

// EventPublisher announces pipeline milestones to other systems.
type EventPublisher interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Scheduler controls when named jobs execute.
type Scheduler interface {
	AddJob(name, spec string, job func(context.Context)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
