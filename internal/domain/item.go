package domain

import "time"

// Item is a unit of work discovered from a source system (email, ticket).
type Item struct {
	ID         string
	Subject    string
	Sender     string
	ReceivedAt time.Time
	RawContent string
	Source     string
}

// ItemRef is the lightweight reference returned by a listing call.
type ItemRef struct {
	ID     string
	Source string
}

// EntryState enumerates the review lifecycle of a queue entry.
type EntryState string

const (
	StateStaged    EntryState = "staged"
	StateNotified  EntryState = "notified"
	StatePublished EntryState = "published"
	StateDiscarded EntryState = "discarded"
)

// Pending reports whether the entry still waits for publication.
func (s EntryState) Pending() bool {
	return s == StateStaged || s == StateNotified
}

// QueueEntry is an enriched item staged for human review.
type QueueEntry struct {
	SourceID            string     `json:"sourceId"`
	Source              string     `json:"source,omitempty"`
	Subject             string     `json:"subject"`
	Sender              string     `json:"sender,omitempty"`
	Summary             string     `json:"summary"`
	ReceivedAt          time.Time  `json:"receivedAt"`
	CorrelatedTicketKey string     `json:"correlatedTicketKey,omitempty"`
	CorrelatedAssignee  string     `json:"correlatedAssignee,omitempty"`
	TicketStatus        string     `json:"ticketStatus,omitempty"`
	State               EntryState `json:"state"`
	EnqueuedAt          time.Time  `json:"enqueuedAt"`
	NotifiedAt          *time.Time `json:"notifiedAt,omitempty"`
	NotifyAttempts      int        `json:"notifyAttempts,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
}

// Ticket is the tracker record an item correlates to.
type Ticket struct {
	Key           string
	Summary       string
	Status        string
	AssigneeEmail string
}

// PersistedState is the durable envelope holding the dedup record and the
// serialized review queue.
type PersistedState struct {
	Version    int          `json:"version"`
	Seen       []string     `json:"seen"`
	LastPollAt *time.Time   `json:"lastPollAt,omitempty"`
	Queue      []QueueEntry `json:"queue"`
}

// CurrentStateVersion is written into every persisted envelope.
const CurrentStateVersion = 1

// Page is the knowledge-base document produced for an approved entry.
type Page struct {
	Title    string
	Body     string
	SpaceKey string
	Draft    bool
	Labels   []string
}

// Notification is a single review request addressed to one recipient.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// DrainResult summarises one drain pass.
type DrainResult struct {
	Published int      `json:"published"`
	Failed    int      `json:"failed"`
	PageIDs   []string `json:"pageIds,omitempty"`
}

// PollResult summarises one poll cycle.
type PollResult struct {
	Listed   int `json:"listed"`
	Skipped  int `json:"skipped"`
	Queued   int `json:"queued"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}
