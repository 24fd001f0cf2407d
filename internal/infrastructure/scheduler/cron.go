package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"KnowledgeScanner/internal/ports"
)

// CronScheduler runs named jobs on robfig/cron specs. A job still running
// when its next tick fires is skipped, and panics are recovered.
type CronScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
	started bool
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler in the provided timezone.
func NewCronScheduler(loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}

	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		entries: map[string]cron.EntryID{},
	}
}

// AddJob registers job under name. Standard five-field specs and
// descriptors such as "@every 5m" are accepted.
func (c *CronScheduler) AddJob(name, spec string, job func(context.Context)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.entries[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}

	id, err := c.cron.AddFunc(spec, func() {
		ctx := c.jobContext()
		c.logger.DebugContext(ctx, "job fired", "job", name)
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	c.entries[name] = id
	return nil
}

// Start begins firing jobs. Jobs receive a context that is cancelled by Stop.
func (c *CronScheduler) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.cron.Start()
	c.started = true

	for name, id := range c.entries {
		c.logger.Info("job scheduled", "job", name, "next", c.cron.Entry(id).Next)
	}
	return nil
}

// Stop prevents new runs and waits for running jobs or ctx expiry.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	cancel := c.cancel
	c.mu.Unlock()

	done := c.cron.Stop()
	cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next activation of a named job.
func (c *CronScheduler) Next(name string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return c.cron.Entry(id).Next, true
}

func (c *CronScheduler) jobContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
