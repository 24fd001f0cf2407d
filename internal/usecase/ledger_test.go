package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KnowledgeScanner/internal/domain"
)

func TestLedgerRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &memStore{}

	first := NewLedger(store, quietLogger())
	first.Dedup().MarkSeen("m1")
	first.Dedup().SetLastPoll(fixedClock())
	require.NoError(t, first.Queue().Enqueue(domain.QueueEntry{SourceID: "m1", Summary: "s"}))
	require.NoError(t, first.Flush(ctx))

	second := NewLedger(store, quietLogger())
	second.Load(ctx)

	assert.True(t, second.Dedup().Has("m1"))
	assert.NotNil(t, second.Dedup().LastPoll())
	entry, ok := second.Queue().Get("m1")
	require.True(t, ok)
	assert.Equal(t, "s", entry.Summary)
	assert.Equal(t, domain.CurrentStateVersion, store.snapshot().Version)
}

func TestLedgerLoadFailureStartsEmpty(t *testing.T) {
	t.Parallel()

	l := NewLedger(&memStore{loadErr: domain.ErrPersistence}, quietLogger())
	l.Load(context.Background())

	assert.Zero(t, l.Dedup().Len())
	assert.Zero(t, l.Queue().Len())
}

func TestLedgerFlushWrapsStoreError(t *testing.T) {
	t.Parallel()

	l := NewLedger(&memStore{saveErr: errBoom}, quietLogger())
	err := l.Flush(context.Background())
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Contains(t, err.Error(), "boom")
}

func TestLedgerWithoutStore(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, quietLogger())
	l.Load(context.Background())
	assert.NoError(t, l.Flush(context.Background()))
}
