package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/logging"
	"KnowledgeScanner/internal/ports"
)

const (
	EventEntryQueued   = "entry.queued"
	EventPagePublished = "page.published"
	EventEntryDiscard  = "entry.discarded"
)

// PipelineSettings carries the tunables of the pipeline.
type PipelineSettings struct {
	SpaceKey         string
	Draft            bool
	Labels           []string
	DefaultRecipient string
	ReviewURL        string
	FetchTimeout     time.Duration
	NotifyTimeout    time.Duration
	PublishTimeout   time.Duration
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.ItemSource
	Ledger     *Ledger
	Enricher   *Enricher
	Correlator *Correlator
	Notifier   ports.Notifier
	Publisher  ports.Publisher
	Renderer   ports.PageRenderer
	Events     ports.EventPublisher
	Settings   PipelineSettings
	Clock      func() time.Time
	Logger     *slog.Logger
}

// Pipeline implements poll -> dedupe -> enrich -> queue -> notify and the
// drain -> publish direction. Polls never overlap other polls and drains
// never overlap other drains; the two directions interleave freely.
type Pipeline struct {
	source     ports.ItemSource
	ledger     *Ledger
	enricher   *Enricher
	correlator *Correlator
	notifier   ports.Notifier
	publisher  ports.Publisher
	renderer   ports.PageRenderer
	events     ports.EventPublisher
	settings   PipelineSettings
	now        func() time.Time
	logger     *slog.Logger

	pollMu  sync.Mutex
	drainMu sync.Mutex
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	settings := deps.Settings
	if settings.FetchTimeout <= 0 {
		settings.FetchTimeout = 20 * time.Second
	}
	if settings.NotifyTimeout <= 0 {
		settings.NotifyTimeout = 15 * time.Second
	}
	if settings.PublishTimeout <= 0 {
		settings.PublishTimeout = 20 * time.Second
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ledger := deps.Ledger
	if ledger == nil {
		ledger = NewLedger(nil, logger)
	}

	return &Pipeline{
		source:     deps.Source,
		ledger:     ledger,
		enricher:   deps.Enricher,
		correlator: deps.Correlator,
		notifier:   deps.Notifier,
		publisher:  deps.Publisher,
		renderer:   deps.Renderer,
		events:     deps.Events,
		settings:   settings,
		now:        clock,
		logger:     logger,
	}
}

// Poll runs one intake cycle. Per-item failures are logged and counted; the
// returned error reports listing or persistence trouble for the cycle.
func (p *Pipeline) Poll(ctx context.Context) (domain.PollResult, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	ctx = ensureCorrelation(ctx)
	var result domain.PollResult
	if p.source == nil {
		return result, nil
	}

	startedAt := p.now()
	dedup := p.ledger.Dedup()

	refs, listErr := p.source.ListCandidates(ctx, dedup.LastPoll())
	if listErr != nil {
		p.logger.WarnContext(ctx, "list candidates", "error", listErr, "listed", len(refs))
	}
	result.Listed = len(refs)

	var flushErr error
	for _, ref := range refs {
		if dedup.Has(ref.ID) {
			result.Skipped++
			continue
		}

		item, err := p.fetch(ctx, ref)
		if err != nil {
			result.Failed++
			p.logger.WarnContext(ctx, "fetch item", "id", ref.ID, "source", ref.Source, "error", err)
			continue
		}

		entry := p.accept(ctx, item)
		result.Queued++

		if err := p.ledger.Flush(ctx); err != nil {
			flushErr = err
			p.logger.ErrorContext(ctx, "persist accepted item", "id", item.ID, "error", err)
		}

		p.emit(ctx, EventEntryQueued, entry)

		sent, err := p.notifyEntry(ctx, entry.SourceID)
		if err != nil {
			result.Failed++
		}
		if sent {
			result.Notified++
		}
	}

	if listErr == nil && result.Failed == 0 {
		dedup.SetLastPoll(startedAt)
	}

	if err := p.ledger.Flush(ctx); err != nil {
		flushErr = err
		p.logger.ErrorContext(ctx, "persist poll cycle", "error", err)
	}

	p.logger.InfoContext(ctx, "poll cycle done",
		"listed", result.Listed,
		"skipped", result.Skipped,
		"queued", result.Queued,
		"notified", result.Notified,
		"failed", result.Failed,
	)

	if listErr != nil {
		return result, fmt.Errorf("list candidates: %w", listErr)
	}
	return result, flushErr
}

func (p *Pipeline) fetch(ctx context.Context, ref domain.ItemRef) (domain.Item, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.settings.FetchTimeout)
	defer cancel()

	item, err := p.source.FetchDetail(callCtx, ref)
	if err != nil {
		return domain.Item{}, err
	}
	if item.ID == "" {
		item.ID = ref.ID
	}
	if item.Source == "" {
		item.Source = ref.Source
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = p.now().UTC()
	}
	return item, nil
}

// accept records the id, enriches, correlates and stages the item.
func (p *Pipeline) accept(ctx context.Context, item domain.Item) domain.QueueEntry {
	p.ledger.Dedup().MarkSeen(item.ID)

	entry := domain.QueueEntry{
		SourceID:   item.ID,
		Source:     item.Source,
		Subject:    item.Subject,
		Sender:     item.Sender,
		Summary:    p.enricher.Summarize(ctx, item.RawContent),
		ReceivedAt: item.ReceivedAt,
		State:      domain.StateStaged,
		EnqueuedAt: p.now().UTC(),
	}

	if p.correlator.Enabled() {
		corr, err := p.correlator.Correlate(ctx, item.Subject)
		applyCorrelation(&entry, corr)
		if err != nil {
			entry.LastError = err.Error()
			p.logger.WarnContext(ctx, "correlate item", "id", item.ID, "key", corr.TicketKey, "error", err)
		}
	}

	if err := p.ledger.Queue().Enqueue(entry); err != nil {
		p.logger.WarnContext(ctx, "enqueue item", "id", item.ID, "error", err)
	}
	return entry
}

func applyCorrelation(entry *domain.QueueEntry, corr Correlation) {
	entry.CorrelatedTicketKey = corr.TicketKey
	if corr.Ticket != nil {
		entry.CorrelatedAssignee = corr.Ticket.AssigneeEmail
		entry.TicketStatus = corr.Ticket.Status
	}
}

// recipientFor routes an entry. A subject carrying a ticket key is routed to
// the ticket assignee only; everything else goes to the default recipient.
func (p *Pipeline) recipientFor(entry domain.QueueEntry) string {
	if entry.CorrelatedTicketKey != "" {
		return entry.CorrelatedAssignee
	}
	return p.settings.DefaultRecipient
}

// notifyEntry sends the review request for a staged entry. It reports
// whether a message went out; an error means the send failed and the entry
// stays staged for the next queue-processing tick.
func (p *Pipeline) notifyEntry(ctx context.Context, id string) (bool, error) {
	if p.notifier == nil {
		return false, nil
	}
	queue := p.ledger.Queue()
	entry, ok := queue.Claim(id)
	if !ok {
		return false, nil
	}
	defer queue.Release(id)
	if entry.State != domain.StateStaged {
		return false, nil
	}

	recipient := p.recipientFor(entry)
	if recipient == "" {
		p.logger.DebugContext(ctx, "no recipient, entry stays staged", "id", id, "ticket", entry.CorrelatedTicketKey)
		return false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, p.settings.NotifyTimeout)
	defer cancel()

	err := p.notifier.Notify(callCtx, BuildNotification(entry, recipient, p.settings.ReviewURL))
	if err != nil {
		_ = queue.Update(id, func(e *domain.QueueEntry) {
			e.NotifyAttempts++
			e.LastError = err.Error()
		})
		p.logger.WarnContext(ctx, "notify reviewer", "id", id, "to", recipient, "error", err)
		return false, err
	}

	notifiedAt := p.now().UTC()
	_ = queue.Update(id, func(e *domain.QueueEntry) {
		e.State = domain.StateNotified
		e.NotifiedAt = &notifiedAt
		e.NotifyAttempts++
		e.LastError = ""
	})
	p.logger.InfoContext(ctx, "reviewer notified", "id", id, "to", recipient)
	return true, nil
}

// RetryNotifications re-correlates unresolved entries and re-sends review
// requests for every entry still staged.
func (p *Pipeline) RetryNotifications(ctx context.Context) (int, error) {
	ctx = ensureCorrelation(ctx)
	queue := p.ledger.Queue()

	sent := 0
	for _, entry := range queue.Pending() {
		if entry.State != domain.StateStaged {
			continue
		}

		if entry.CorrelatedTicketKey != "" && entry.CorrelatedAssignee == "" && p.correlator.Enabled() {
			corr, err := p.correlator.Resolve(ctx, entry.CorrelatedTicketKey)
			if err != nil {
				p.logger.WarnContext(ctx, "re-correlate entry", "id", entry.SourceID, "error", err)
				continue
			}
			_ = queue.Update(entry.SourceID, func(e *domain.QueueEntry) {
				applyCorrelation(e, corr)
			})
		}

		ok, _ := p.notifyEntry(ctx, entry.SourceID)
		if ok {
			sent++
		}
	}

	if err := p.ledger.Flush(ctx); err != nil {
		p.logger.ErrorContext(ctx, "persist notification retries", "error", err)
		return sent, err
	}
	return sent, nil
}

// DrainAndPublish attempts to publish every pending entry in arrival order.
// Each successful publish is removed from the queue and committed to the
// state store before the result is returned.
func (p *Pipeline) DrainAndPublish(ctx context.Context) (domain.DrainResult, error) {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()

	ctx = ensureCorrelation(ctx)
	result := domain.DrainResult{}

	pending := p.ledger.Queue().Pending()
	if len(pending) == 0 {
		return result, nil
	}
	if p.publisher == nil || p.renderer == nil {
		return result, domain.Configf("publisher is not configured")
	}

	queue := p.ledger.Queue()
	var flushErr error
	for _, snap := range pending {
		entry, ok := queue.Claim(snap.SourceID)
		if !ok {
			p.logger.DebugContext(ctx, "entry left the queue or is busy, skipping", "id", snap.SourceID)
			continue
		}

		pageID, err := p.publishEntry(ctx, entry)
		if err != nil {
			queue.Release(entry.SourceID)
			result.Failed++
			_ = queue.Update(entry.SourceID, func(e *domain.QueueEntry) {
				e.LastError = err.Error()
			})
			p.logger.WarnContext(ctx, "publish entry", "id", entry.SourceID, "error", err, "retryable", retryable(err))
			continue
		}

		if _, ok := queue.Remove(entry.SourceID); !ok {
			p.logger.WarnContext(ctx, "published entry vanished from queue", "id", entry.SourceID)
		}
		result.Published++
		result.PageIDs = append(result.PageIDs, pageID)

		if err := p.ledger.Flush(ctx); err != nil {
			flushErr = err
			p.logger.ErrorContext(ctx, "persist published entry", "id", entry.SourceID, "error", err)
		}

		p.logger.InfoContext(ctx, "entry published", "id", entry.SourceID, "page_id", pageID)
		p.emit(ctx, EventPagePublished, map[string]string{
			"sourceId": entry.SourceID,
			"pageId":   pageID,
			"title":    PageTitle(entry),
		})
	}

	if result.Failed > 0 {
		// failure text is recorded on the entries
		if err := p.ledger.Flush(ctx); err != nil {
			flushErr = err
		}
	}

	p.logger.InfoContext(ctx, "drain done", "published", result.Published, "failed", result.Failed)
	return result, flushErr
}

func (p *Pipeline) publishEntry(ctx context.Context, entry domain.QueueEntry) (string, error) {
	body, err := p.renderer.Render(entry)
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.settings.PublishTimeout)
	defer cancel()

	return p.publisher.Publish(callCtx, domain.Page{
		Title:    PageTitle(entry),
		Body:     body,
		SpaceKey: p.settings.SpaceKey,
		Draft:    p.settings.Draft,
		Labels:   p.settings.Labels,
	})
}

// Discard removes a pending entry on operator request. It waits for a
// running drain so an entry is never both published and discarded.
func (p *Pipeline) Discard(ctx context.Context, id string) error {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()

	entry, ok := p.ledger.Queue().Remove(id)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrEntryNotFound, id)
	}
	entry.State = domain.StateDiscarded

	p.logger.InfoContext(ctx, "entry discarded", "id", id)
	p.emit(ctx, EventEntryDiscard, entry)
	return p.ledger.Flush(ctx)
}

// Status is a point-in-time view of the pipeline state.
type Status struct {
	Queued     int                 `json:"queued"`
	Seen       int                 `json:"seen"`
	LastPollAt *time.Time          `json:"lastPollAt,omitempty"`
	Entries    []domain.QueueEntry `json:"entries"`
}

// Status reports queue and dedup counters.
func (p *Pipeline) Status() Status {
	entries := p.ledger.Queue().Pending()
	return Status{
		Queued:     len(entries),
		Seen:       p.ledger.Dedup().Len(),
		LastPollAt: p.ledger.Dedup().LastPoll(),
		Entries:    entries,
	}
}

func (p *Pipeline) emit(ctx context.Context, event string, payload any) {
	if p.events == nil {
		return
	}
	if err := p.events.Emit(ctx, event, payload); err != nil {
		p.logger.WarnContext(ctx, "emit event", "event", event, "error", err)
	}
}

// PageTitle derives a knowledge-base title that is unique per source id.
func PageTitle(entry domain.QueueEntry) string {
	subject := strings.TrimSpace(entry.Subject)
	if subject == "" {
		return "Untitled item " + entry.SourceID
	}
	if strings.Contains(subject, entry.SourceID) {
		return subject
	}
	return fmt.Sprintf("%s [%s]", subject, entry.SourceID)
}

func retryable(err error) bool {
	var pubErr *domain.PublishError
	if errors.As(err, &pubErr) {
		return pubErr.Retryable()
	}
	return errors.Is(err, domain.ErrTransient)
}

func ensureCorrelation(ctx context.Context) context.Context {
	if logging.CorrelationID(ctx) != "" {
		return ctx
	}
	ctx, _ = logging.NewCorrelationID(ctx)
	return ctx
}
