package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"KnowledgeScanner/internal/domain"
)

type sourceMock struct{ mock.Mock }

func (m *sourceMock) ListCandidates(ctx context.Context, since *time.Time) ([]domain.ItemRef, error) {
	args := m.Called(ctx, since)
	refs, _ := args.Get(0).([]domain.ItemRef)
	return refs, args.Error(1)
}

func (m *sourceMock) FetchDetail(ctx context.Context, ref domain.ItemRef) (domain.Item, error) {
	args := m.Called(ctx, ref)
	item, _ := args.Get(0).(domain.Item)
	return item, args.Error(1)
}

type summarizerMock struct{ mock.Mock }

func (m *summarizerMock) Summarize(ctx context.Context, content string) (string, error) {
	args := m.Called(ctx, content)
	return args.String(0), args.Error(1)
}

type lookupMock struct{ mock.Mock }

func (m *lookupMock) LookupTicket(ctx context.Context, key string) (*domain.Ticket, error) {
	args := m.Called(ctx, key)
	ticket, _ := args.Get(0).(*domain.Ticket)
	return ticket, args.Error(1)
}

type notifierMock struct{ mock.Mock }

func (m *notifierMock) Notify(ctx context.Context, n domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type publisherMock struct{ mock.Mock }

func (m *publisherMock) Publish(ctx context.Context, page domain.Page) (string, error) {
	args := m.Called(ctx, page)
	return args.String(0), args.Error(1)
}

type stubRenderer struct{}

func (stubRenderer) Render(entry domain.QueueEntry) (string, error) {
	return "<p>" + entry.Summary + "</p>", nil
}

type memStore struct {
	mu      sync.Mutex
	state   domain.PersistedState
	saves   int
	loadErr error
	saveErr error
}

func (s *memStore) Load(context.Context) (domain.PersistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.PersistedState{}, s.loadErr
	}
	return s.state, nil
}

func (s *memStore) Save(_ context.Context, state domain.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.state = state
	return nil
}

func (s *memStore) snapshot() domain.PersistedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

var errBoom = errors.New("boom")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
}
