package notify

import (
	"context"
	"log/slog"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

// Fanout delivers through a primary channel and mirrors successful
// deliveries to secondary channels. Only the primary outcome counts.
type Fanout struct {
	primary ports.Notifier
	mirrors []ports.Notifier
	logger  *slog.Logger
}

var _ ports.Notifier = (*Fanout)(nil)

// NewFanout returns nil when no channel is configured.
func NewFanout(logger *slog.Logger, primary ports.Notifier, mirrors ...ports.Notifier) *Fanout {
	if primary == nil {
		if len(mirrors) == 0 {
			return nil
		}
		primary, mirrors = mirrors[0], mirrors[1:]
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{primary: primary, mirrors: mirrors, logger: logger}
}

// Notify sends n through the primary channel, then the mirrors.
func (f *Fanout) Notify(ctx context.Context, n domain.Notification) error {
	if err := f.primary.Notify(ctx, n); err != nil {
		return err
	}
	for _, m := range f.mirrors {
		if err := m.Notify(ctx, n); err != nil {
			f.logger.WarnContext(ctx, "mirror notification failed", "to", n.To, "error", err)
		}
	}
	return nil
}
