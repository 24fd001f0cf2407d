package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

type harness struct {
	source    *sourceMock
	summary   *summarizerMock
	lookup    *lookupMock
	notifier  *notifierMock
	publisher *publisherMock
	store     *memStore
	ledger    *Ledger
}

func newHarness(withLookup bool) *harness {
	h := &harness{
		source:    &sourceMock{},
		summary:   &summarizerMock{},
		lookup:    &lookupMock{},
		notifier:  &notifierMock{},
		publisher: &publisherMock{},
		store:     &memStore{},
	}
	h.ledger = NewLedger(h.store, quietLogger())
	return h.withLookup(withLookup)
}

func (h *harness) withLookup(on bool) *harness {
	if !on {
		h.lookup = nil
	}
	return h
}

func (h *harness) pipeline() *Pipeline {
	var lookup ports.TicketLookup
	if h.lookup != nil {
		lookup = h.lookup
	}
	return NewPipeline(PipelineDeps{
		Source:     h.source,
		Ledger:     h.ledger,
		Enricher:   NewEnricher(h.summary, time.Second, quietLogger()),
		Correlator: NewCorrelator(lookup, time.Second, quietLogger()),
		Notifier:   h.notifier,
		Publisher:  h.publisher,
		Renderer:   stubRenderer{},
		Settings: PipelineSettings{
			SpaceKey:         "KB",
			Draft:            true,
			Labels:           []string{"review-needed"},
			DefaultRecipient: "kb-team@example.com",
			ReviewURL:        "http://scanner.local",
		},
		Clock:  fixedClock,
		Logger: quietLogger(),
	})
}

func ref(id string) domain.ItemRef {
	return domain.ItemRef{ID: id, Source: "inbox"}
}

func item(id, subject, raw string) domain.Item {
	return domain.Item{
		ID:         id,
		Subject:    subject,
		Sender:     "ops@example.com",
		ReceivedAt: time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC),
		RawContent: raw,
		Source:     "inbox",
	}
}

func sentTo(addr string) any {
	return mock.MatchedBy(func(n domain.Notification) bool { return n.To == addr })
}

func TestPollQueuesSummarizesAndNotifies(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	h.source.On("ListCandidates", mock.Anything, mock.Anything).Return([]domain.ItemRef{ref("m1")}, nil)
	h.source.On("FetchDetail", mock.Anything, ref("m1")).
		Return(item("m1", "Printer toner", "Replace the toner in printer 3 on floor 2."), nil)
	h.summary.On("Summarize", mock.Anything, "Replace the toner in printer 3 on floor 2.").
		Return("Toner swap for printer 3.", nil)
	h.notifier.On("Notify", mock.Anything, sentTo("kb-team@example.com")).Return(nil).Once()

	res, err := h.pipeline().Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.PollResult{Listed: 1, Queued: 1, Notified: 1}, res)
	assert.True(t, h.ledger.Dedup().Has("m1"))

	entries := h.ledger.Queue().Pending()
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].SourceID)
	assert.Equal(t, "Toner swap for printer 3.", entries[0].Summary)
	assert.Equal(t, domain.StateNotified, entries[0].State)
	require.NotNil(t, entries[0].NotifiedAt)

	persisted := h.store.snapshot()
	assert.Equal(t, []string{"m1"}, persisted.Seen)
	require.Len(t, persisted.Queue, 1)
	require.NotNil(t, persisted.LastPollAt)
	assert.True(t, persisted.LastPollAt.Equal(fixedClock()))

	h.notifier.AssertExpectations(t)
}

func TestPollSkipsAlreadySeenItems(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	h.source.On("ListCandidates", mock.Anything, mock.Anything).Return([]domain.ItemRef{ref("m1")}, nil)
	h.source.On("FetchDetail", mock.Anything, ref("m1")).Return(item("m1", "Printer toner", "body"), nil)
	h.summary.On("Summarize", mock.Anything, "body").Return("summary", nil)
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	p := h.pipeline()
	_, err := p.Poll(context.Background())
	require.NoError(t, err)

	res, err := p.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Queued)
	assert.Equal(t, 1, h.ledger.Queue().Len())
	h.source.AssertNumberOfCalls(t, "FetchDetail", 1)
	h.notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestPollFallsBackToRawContent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		summary string
		err     error
	}{
		{name: "backend error", err: errBoom},
		{name: "empty summary", summary: "   "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(false)
			h.source.On("ListCandidates", mock.Anything, mock.Anything).Return([]domain.ItemRef{ref("m1")}, nil)
			h.source.On("FetchDetail", mock.Anything, ref("m1")).Return(item("m1", "VPN", "raw body"), nil)
			h.summary.On("Summarize", mock.Anything, "raw body").Return(tc.summary, tc.err)
			h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

			res, err := h.pipeline().Poll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, res.Queued)

			entry, ok := h.ledger.Queue().Get("m1")
			require.True(t, ok)
			assert.Equal(t, "raw body", entry.Summary)
		})
	}
}

func TestPollContinuesPastFetchFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	h.source.On("ListCandidates", mock.Anything, mock.Anything).
		Return([]domain.ItemRef{ref("m1"), ref("m2"), ref("m3")}, nil)
	h.source.On("FetchDetail", mock.Anything, ref("m1")).Return(item("m1", "one", "a"), nil)
	h.source.On("FetchDetail", mock.Anything, ref("m2")).Return(domain.Item{}, errBoom).Once()
	h.source.On("FetchDetail", mock.Anything, ref("m3")).Return(item("m3", "three", "c"), nil)
	h.summary.On("Summarize", mock.Anything, mock.Anything).Return("s", nil)
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	p := h.pipeline()
	res, err := p.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Queued)
	assert.Equal(t, 1, res.Failed)
	assert.False(t, h.ledger.Dedup().Has("m2"))
	assert.Nil(t, h.ledger.Dedup().LastPoll(), "watermark must not advance past a failed item")

	h.source.On("FetchDetail", mock.Anything, ref("m2")).Return(item("m2", "two", "b"), nil)

	res, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, 2, res.Skipped)
	assert.NotNil(t, h.ledger.Dedup().LastPoll())

	ids := make([]string, 0, 3)
	for _, e := range h.ledger.Queue().Pending() {
		ids = append(ids, e.SourceID)
	}
	assert.Equal(t, []string{"m1", "m3", "m2"}, ids)
}

func TestPollReportsListingFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	h.source.On("ListCandidates", mock.Anything, mock.Anything).Return(nil, errBoom)

	res, err := h.pipeline().Poll(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, res.Queued)
	assert.Nil(t, h.ledger.Dedup().LastPoll())
}

func TestPollRoutesCorrelatedItemToAssignee(t *testing.T) {
	t.Parallel()

	h := newHarness(true)
	h.source.On("ListCandidates", mock.Anything, mock.Anything).Return([]domain.ItemRef{ref("m7")}, nil)
	h.source.On("FetchDetail", mock.Anything, ref("m7")).
		Return(item("m7", "Re: ABC-123 VPN drops every hour", "details"), nil)
	h.summary.On("Summarize", mock.Anything, mock.Anything).Return("VPN fix", nil)
	h.lookup.On("LookupTicket", mock.Anything, "ABC-123").
		Return(&domain.Ticket{Key: "ABC-123", Status: "Resolved", AssigneeEmail: "dev@example.com"}, nil)
	h.notifier.On("Notify", mock.Anything, sentTo("dev@example.com")).Return(nil).Once()

	res, err := h.pipeline().Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notified)

	entry, ok := h.ledger.Queue().Get("m7")
	require.True(t, ok)
	assert.Equal(t, "ABC-123", entry.CorrelatedTicketKey)
	assert.Equal(t, "dev@example.com", entry.CorrelatedAssignee)
	assert.Equal(t, "Resolved", entry.TicketStatus)
	h.notifier.AssertExpectations(t)
}

func TestUnresolvedTicketWaitsForRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(true)
	h.source.On("ListCandidates", mock.Anything, mock.Anything).Return([]domain.ItemRef{ref("m7")}, nil)
	h.source.On("FetchDetail", mock.Anything, ref("m7")).
		Return(item("m7", "ABC-123 follow-up", "details"), nil)
	h.summary.On("Summarize", mock.Anything, mock.Anything).Return("s", nil)
	h.lookup.On("LookupTicket", mock.Anything, "ABC-123").Return(nil, nil).Once()

	p := h.pipeline()
	res, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Notified)
	h.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)

	entry, ok := h.ledger.Queue().Get("m7")
	require.True(t, ok)
	assert.Equal(t, domain.StateStaged, entry.State)
	assert.Equal(t, "ABC-123", entry.CorrelatedTicketKey)

	h.lookup.On("LookupTicket", mock.Anything, "ABC-123").
		Return(&domain.Ticket{Key: "ABC-123", AssigneeEmail: "dev@example.com"}, nil)
	h.notifier.On("Notify", mock.Anything, sentTo("dev@example.com")).Return(nil).Once()

	sent, err := p.RetryNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	entry, _ = h.ledger.Queue().Get("m7")
	assert.Equal(t, domain.StateNotified, entry.State)
	h.notifier.AssertExpectations(t)
}

func TestNotifyFailureKeepsEntryStaged(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	h.source.On("ListCandidates", mock.Anything, mock.Anything).Return([]domain.ItemRef{ref("m1")}, nil)
	h.source.On("FetchDetail", mock.Anything, ref("m1")).Return(item("m1", "Printer toner", "raw"), nil)
	h.summary.On("Summarize", mock.Anything, mock.Anything).Return("s", nil)
	h.notifier.On("Notify", mock.Anything, mock.Anything).Return(errBoom).Once()

	res, err := h.pipeline().Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, 1, res.Failed)

	entry, ok := h.ledger.Queue().Get("m1")
	require.True(t, ok)
	assert.Equal(t, domain.StateStaged, entry.State)
	assert.Equal(t, 1, entry.NotifyAttempts)
	assert.Contains(t, entry.LastError, "boom")
	assert.True(t, h.ledger.Dedup().Has("m1"))
}

func TestDrainEmptyQueueDoesNotPublish(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	res, err := h.pipeline().DrainAndPublish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Published)
	assert.Equal(t, 0, res.Failed)
	h.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func seed(t *testing.T, l *Ledger, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, l.Queue().Enqueue(domain.QueueEntry{
			SourceID: id,
			Subject:  "Subject " + id,
			Summary:  "summary " + id,
		}))
	}
}

func TestDrainPublishesInArrivalOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	seed(t, h.ledger, "a", "b", "c")

	var titles []string
	h.publisher.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			page := args.Get(1).(domain.Page)
			titles = append(titles, page.Title)
		}).
		Return("page-1", nil)

	res, err := h.pipeline().DrainAndPublish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Published)
	assert.Equal(t, []string{"Subject a [a]", "Subject b [b]", "Subject c [c]"}, titles)
	assert.Zero(t, h.ledger.Queue().Len())
	assert.Empty(t, h.store.snapshot().Queue)
}

func TestDrainPassesPageSettings(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	seed(t, h.ledger, "a")
	h.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(p domain.Page) bool {
		return p.SpaceKey == "KB" && p.Draft && p.Body == "<p>summary a</p>" &&
			len(p.Labels) == 1 && p.Labels[0] == "review-needed"
	})).Return("42", nil).Once()

	res, err := h.pipeline().DrainAndPublish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, res.PageIDs)
	h.publisher.AssertExpectations(t)
}

func TestDrainKeepsFailedEntries(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	seed(t, h.ledger, "a", "b", "c")

	h.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(p domain.Page) bool {
		return strings.HasSuffix(p.Title, "[b]")
	})).Return("", &domain.PublishError{Kind: domain.PublishRateLimit, Status: 429, Err: errBoom})
	h.publisher.On("Publish", mock.Anything, mock.Anything).Return("ok", nil)

	res, err := h.pipeline().DrainAndPublish(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Published)
	assert.Equal(t, 1, res.Failed)

	pending := h.ledger.Queue().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].SourceID)
	assert.Contains(t, pending[0].LastError, "rate_limit")

	persisted := h.store.snapshot()
	require.Len(t, persisted.Queue, 1)
	assert.Equal(t, "b", persisted.Queue[0].SourceID)
}

func TestDrainReportsPersistenceFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	seed(t, h.ledger, "a")
	h.store.saveErr = errBoom
	h.publisher.On("Publish", mock.Anything, mock.Anything).Return("1", nil)

	res, err := h.pipeline().DrainAndPublish(context.Background())
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, 1, res.Published)
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	seed(t, h.ledger, "a", "b")
	p := h.pipeline()

	require.NoError(t, p.Discard(context.Background(), "a"))
	assert.Equal(t, 1, h.ledger.Queue().Len())
	require.Len(t, h.store.snapshot().Queue, 1)

	err := p.Discard(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(false)
	seed(t, h.ledger, "a")
	h.ledger.Dedup().MarkSeen("a")
	h.ledger.Dedup().MarkSeen("z")

	st := h.pipeline().Status()
	assert.Equal(t, 1, st.Queued)
	assert.Equal(t, 2, st.Seen)
	assert.Nil(t, st.LastPollAt)
}

func TestPageTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		entry domain.QueueEntry
		want  string
	}{
		{"suffix id", domain.QueueEntry{SourceID: "m1", Subject: "Printer toner"}, "Printer toner [m1]"},
		{"id in subject", domain.QueueEntry{SourceID: "ABC-1", Subject: "[ABC-1] Fix VPN"}, "[ABC-1] Fix VPN"},
		{"empty subject", domain.QueueEntry{SourceID: "m2", Subject: "  "}, "Untitled item m2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PageTitle(tc.entry))
		})
	}
}
