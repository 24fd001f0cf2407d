package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"KnowledgeScanner/internal/ports"
)

const defaultSummarizeTimeout = 30 * time.Second

// Enricher produces a summary for raw content. It never fails: any backend
// error or empty result yields the raw content unchanged.
type Enricher struct {
	backend ports.Summarizer
	timeout time.Duration
	logger  *slog.Logger
}

// NewEnricher wraps a summarizer backend; a nil backend disables enrichment.
func NewEnricher(backend ports.Summarizer, timeout time.Duration, logger *slog.Logger) *Enricher {
	if timeout <= 0 {
		timeout = defaultSummarizeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{backend: backend, timeout: timeout, logger: logger}
}

// Summarize returns the backend summary or raw verbatim.
func (e *Enricher) Summarize(ctx context.Context, raw string) string {
	if e == nil || e.backend == nil || strings.TrimSpace(raw) == "" {
		return raw
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	summary, err := e.backend.Summarize(callCtx, raw)
	if err != nil {
		e.logger.WarnContext(ctx, "summarize failed, using raw content", "error", err)
		return raw
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		e.logger.WarnContext(ctx, "summarizer returned empty result, using raw content")
		return raw
	}
	return summary
}
