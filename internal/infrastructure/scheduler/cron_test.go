package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCronSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, quietLogger())
	err := s.AddJob("poll", "not a spec", func(context.Context) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll")
}

func TestCronSchedulerRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, quietLogger())
	require.NoError(t, s.AddJob("poll", "@every 1m", func(context.Context) {}))
	require.Error(t, s.AddJob("poll", "@every 2m", func(context.Context) {}))
}

func TestCronSchedulerRunsJobs(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, quietLogger())

	var runs atomic.Int32
	require.NoError(t, s.AddJob("tick", "@every 1s", func(ctx context.Context) {
		runs.Add(1)
	}))

	next, ok := s.Next("tick")
	require.True(t, ok)
	assert.True(t, next.IsZero(), "next is unknown before start")

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return runs.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "second stop is a no-op")
}

func TestCronSchedulerCancelsJobContextOnStop(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, quietLogger())

	started := make(chan struct{}, 1)
	require.NoError(t, s.AddJob("long", "@every 1s", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
	}))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
