package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

const (
	JobPoll  = "poll"
	JobDrain = "drain"
)

// SchedulerOptions sets the two timer expressions.
type SchedulerOptions struct {
	PollSpec       string
	DrainSpec      string
	ManualApproval bool
	PollOnStart    bool
}

// Scheduler wires the cron driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	opts     SchedulerOptions
	logger   *slog.Logger

	// start-up poll, waited on by Stop
	wg sync.WaitGroup
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, opts SchedulerOptions, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, opts: opts, logger: logger}
}

// Start registers the poll and drain jobs with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	if err := s.driver.AddJob(JobPoll, s.opts.PollSpec, s.runPoll); err != nil {
		return err
	}
	if err := s.driver.AddJob(JobDrain, s.opts.DrainSpec, s.ProcessQueue); err != nil {
		return err
	}
	if err := s.driver.Start(ctx); err != nil {
		return err
	}

	if s.opts.PollOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runPoll(ctx)
		}()
	}
	return nil
}

// ProcessQueue is the drain tick: retry pending notifications, then publish
// unless approval is manual.
func (s *Scheduler) ProcessQueue(ctx context.Context) {
	ctx = ensureCorrelation(ctx)

	if _, err := s.pipeline.RetryNotifications(ctx); err != nil {
		s.logger.ErrorContext(ctx, "retry notifications", "error", err)
	}
	if s.opts.ManualApproval {
		return
	}
	if _, err := s.pipeline.DrainAndPublish(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled drain", "error", err)
	}
}

// TriggerDrain publishes the queue on operator request. It shares the
// pipeline drain lock with the scheduled tick.
func (s *Scheduler) TriggerDrain(ctx context.Context) (domain.DrainResult, error) {
	return s.pipeline.DrainAndPublish(ensureCorrelation(ctx))
}

func (s *Scheduler) runPoll(ctx context.Context) {
	ctx = ensureCorrelation(ctx)
	if _, err := s.pipeline.Poll(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled poll", "error", err)
	}
}

// Stop tears down the underlying scheduler and waits for the start-up poll
// until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	if s.driver != nil {
		err = s.driver.Stop(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("wait for start-up poll: %w", ctx.Err()))
	}
}
