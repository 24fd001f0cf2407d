package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/infrastructure/confluence"
	"KnowledgeScanner/internal/infrastructure/events"
	"KnowledgeScanner/internal/infrastructure/gmail"
	"KnowledgeScanner/internal/infrastructure/httpapi"
	"KnowledgeScanner/internal/infrastructure/jira"
	"KnowledgeScanner/internal/infrastructure/llm"
	"KnowledgeScanner/internal/infrastructure/ml"
	"KnowledgeScanner/internal/infrastructure/notify"
	"KnowledgeScanner/internal/infrastructure/parser"
	"KnowledgeScanner/internal/infrastructure/scheduler"
	"KnowledgeScanner/internal/infrastructure/state"
	"KnowledgeScanner/internal/infrastructure/storage"
	"KnowledgeScanner/internal/infrastructure/telegram"
	"KnowledgeScanner/internal/logging"
	"KnowledgeScanner/internal/ports"
	"KnowledgeScanner/internal/scanner"
	"KnowledgeScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       *config.Config
	logger    *slog.Logger
	ledger    *usecase.Ledger
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	server    *httpapi.Server
	closers   []func() error
}

// New builds every adapter named by cfg and loads persisted state. Close
// must be called to release connections.
func New(ctx context.Context, cfg *config.Config, baseLogger *slog.Logger) (_ *Application, err error) {
	if cfg == nil {
		return nil, domain.Configf("nil configuration")
	}
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	a := &Application{cfg: cfg, logger: baseLogger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store, err := a.openStateStore(ctx)
	if err != nil {
		return nil, err
	}
	a.ledger = usecase.NewLedger(store, a.component("ledger"))
	a.ledger.Load(ctx)

	registry := scanner.NewRegistry()
	var (
		lookup  ports.TicketLookup
		primary ports.Notifier
		mirrors []ports.Notifier
	)

	if cfg.UsesGmail() {
		svc, err := gmail.NewService(ctx, cfg.Gmail)
		if err != nil {
			return nil, err
		}
		registry.Register(gmail.NewSource(svc, cfg.Gmail.User, a.component("source.gmail")))
		if cfg.Notify.From != "" {
			primary = gmail.NewSender(svc, cfg.Gmail.User, cfg.Notify.From, a.component("notify.gmail"))
		}
	}

	if cfg.Jira.Enabled() {
		client := jira.NewClient(cfg.Jira, a.component("source.jira"))
		registry.Register(client)
		if !cfg.Jira.SkipCorrelation {
			lookup = client
		}
	}

	if cfg.Notify.Telegram.Enabled() {
		mirrors = append(mirrors, telegram.NewNotifier(cfg.Notify.Telegram, a.component("notify.telegram")))
	}
	var notifier ports.Notifier
	if f := notify.NewFanout(a.component("notify"), primary, mirrors...); f != nil {
		notifier = f
	}

	summarizer, err := a.newSummarizer(ctx)
	if err != nil {
		return nil, err
	}

	var emitter ports.EventPublisher
	if cfg.Events.NSQDAddr != "" {
		producer, err := events.NewNSQProducer(cfg.Events.NSQDAddr)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			producer.Stop()
			return nil
		})
		emitter = events.NewEmitter(producer, cfg.Events.Topic)
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:     parser.NewStrategySource(registry, cfg.Sources, a.component("source")),
		Ledger:     a.ledger,
		Enricher:   usecase.NewEnricher(summarizer, cfg.Summarizer.Timeout, a.component("enricher")),
		Correlator: usecase.NewCorrelator(lookup, cfg.Jira.Timeout, a.component("correlator")),
		Notifier:   notifier,
		Publisher:  confluence.NewPublisher(cfg.Confluence, a.component("publisher")),
		Renderer:   confluence.Renderer{},
		Events:     emitter,
		Settings: usecase.PipelineSettings{
			SpaceKey:         cfg.Confluence.SpaceKey,
			Draft:            cfg.Confluence.Status == "draft",
			Labels:           cfg.Confluence.Labels,
			DefaultRecipient: cfg.Notify.DefaultRecipient,
			ReviewURL:        cfg.Notify.ReviewURL,
			FetchTimeout:     cfg.Gmail.Timeout,
			NotifyTimeout:    cfg.Notify.Timeout,
			PublishTimeout:   cfg.Confluence.Timeout,
		},
		Logger: a.component("pipeline"),
	})

	driver := scheduler.NewCronScheduler(cfg.Schedule.Location(), a.component("cron"))
	a.scheduler = usecase.NewScheduler(driver, a.pipeline, usecase.SchedulerOptions{
		PollSpec:       cfg.Schedule.Poll,
		DrainSpec:      cfg.Schedule.Drain,
		ManualApproval: cfg.Schedule.ManualApproval,
		PollOnStart:    true,
	}, a.component("scheduler"))

	a.server = httpapi.NewServer(cfg.Server.Addr, cfg.Server.ShutdownTimeout, a.scheduler, a.pipeline, a.component("http"))

	a.logger.InfoContext(ctx, "application ready",
		"sources", registry.Kinds(),
		"state", cfg.State.Backend,
		"summarizer", cfg.Summarizer.Backend,
		"correlation", lookup != nil,
		"notifier", notifier != nil,
	)
	return a, nil
}

func (a *Application) component(name string) *slog.Logger {
	return a.logger.With("component", name)
}

func (a *Application) openStateStore(ctx context.Context) (ports.StateStore, error) {
	cfg := a.cfg.State
	switch cfg.Backend {
	case "file":
		return state.NewFileStore(cfg.Path), nil
	case "sqlite":
		store, err := storage.OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "postgres":
		store, err := storage.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, domain.Configf("unknown state backend %q", cfg.Backend)
	}
}

func (a *Application) newSummarizer(ctx context.Context) (ports.Summarizer, error) {
	cfg := a.cfg.Summarizer
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "openai":
		return llm.NewOpenAIClient(cfg), nil
	case "anthropic":
		return llm.NewAnthropicClient(cfg), nil
	case "gemini":
		client, err := llm.NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	case "predict":
		return ml.NewClient(cfg), nil
	default:
		return nil, domain.Configf("unknown summarizer backend %q", cfg.Backend)
	}
}

// Pipeline exposes the orchestration use case for one-shot commands.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Run starts the timers and the HTTP surface and blocks until ctx is done
// or one of them fails. State is flushed on the way out.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.scheduler.Stop(stopCtx)
	})

	err := g.Wait()
	if flushErr := a.ledger.Flush(context.WithoutCancel(ctx)); flushErr != nil {
		err = errors.Join(err, flushErr)
	}
	a.logger.Info("application stopped")
	return err
}

// Close releases every connection opened by New.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
