package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KnowledgeScanner/internal/domain"
)

func sampleState() domain.PersistedState {
	last := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	return domain.PersistedState{
		Version:    domain.CurrentStateVersion,
		Seen:       []string{"m1", "m2"},
		LastPollAt: &last,
		Queue: []domain.QueueEntry{{
			SourceID:   "m2",
			Subject:    "Printer toner",
			Summary:    "Toner swap",
			State:      domain.StateStaged,
			ReceivedAt: last,
			EnqueuedAt: last,
		}},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleState()))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	got, err := NewFileStore(filepath.Join(t.TempDir(), "absent.json")).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Seen)
	assert.Empty(t, got.Queue)
}

func TestFileStoreCorruptDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"seen": [`), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	require.ErrorIs(t, err, domain.ErrPersistence)
}

func TestFileStoreIgnoresLeftoverTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleState()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json.123.tmp"), []byte("half"), 0o600))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, got.Seen)
}

func TestFileStoreOverwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleState()))
	require.NoError(t, store.Save(ctx, domain.PersistedState{Version: 1, Seen: []string{"x"}}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Seen)
	assert.Empty(t, got.Queue)
}
