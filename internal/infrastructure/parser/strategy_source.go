package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
	"KnowledgeScanner/internal/scanner"
)

// StrategySource implements ItemSource via registered connector strategies.
type StrategySource struct {
	registry *scanner.Registry
	sources  []config.SourceConfig
	logger   *slog.Logger
}

var _ ports.ItemSource = (*StrategySource)(nil)

// NewStrategySource wires connector registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sources:  sources,
		logger:   log,
	}
}

// ListCandidates iterates over configured sources and lists each one. A
// failing source does not stop the others; its error is joined into the
// result alongside the references that were collected.
func (s *StrategySource) ListCandidates(ctx context.Context, since *time.Time) ([]domain.ItemRef, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("connector registry is not configured")
	}

	s.debug(ctx, "list candidates", "sources", len(s.sources))

	var (
		aggregated []domain.ItemRef
		errs       []error
	)
	for _, src := range s.sources {
		connector, err := s.registry.Resolve(src.Kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
			continue
		}

		refs, err := connector.List(ctx, ports.Query{Filter: src.Filter, Limit: src.Limit, Since: since})
		if err != nil {
			errs = append(errs, fmt.Errorf("list source %s: %w", src.Name, err))
			continue
		}

		for i := range refs {
			refs[i].Source = src.Name
		}
		s.debug(ctx, "source listed", "source", src.Name, "kind", src.Kind, "count", len(refs))
		aggregated = append(aggregated, refs...)
	}

	return aggregated, errors.Join(errs...)
}

// FetchDetail loads the item through the connector of its source.
func (s *StrategySource) FetchDetail(ctx context.Context, ref domain.ItemRef) (domain.Item, error) {
	src, ok := s.source(ref.Source)
	if !ok {
		return domain.Item{}, fmt.Errorf("unknown source %q for item %s", ref.Source, ref.ID)
	}
	connector, err := s.registry.Resolve(src.Kind)
	if err != nil {
		return domain.Item{}, fmt.Errorf("source %s: %w", src.Name, err)
	}

	item, err := connector.Fetch(ctx, ref.ID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("fetch %s from %s: %w", ref.ID, src.Name, err)
	}
	item.Source = src.Name
	return item, nil
}

func (s *StrategySource) source(name string) (config.SourceConfig, bool) {
	for _, src := range s.sources {
		if src.Name == name {
			return src, true
		}
	}
	return config.SourceConfig{}, false
}

func (s *StrategySource) debug(ctx context.Context, msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.DebugContext(ctx, msg, args...)
	}
}
