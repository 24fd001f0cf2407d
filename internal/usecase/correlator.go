package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

var ticketKeyExpr = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-[0-9]+\b`)

// ExtractTicketKey returns the first tracker key (e.g. ABC-123) in subject.
// Lowercase project codes never match.
func ExtractTicketKey(subject string) (string, bool) {
	key := ticketKeyExpr.FindString(subject)
	return key, key != ""
}

// Correlation is the routing metadata attached to a queue entry.
type Correlation struct {
	TicketKey string
	Ticket    *domain.Ticket
}

// Correlator maps an inbound subject to a tracker ticket.
type Correlator struct {
	lookup  ports.TicketLookup
	timeout time.Duration
	logger  *slog.Logger
}

// NewCorrelator builds a correlator; a nil lookup disables correlation.
func NewCorrelator(lookup ports.TicketLookup, timeout time.Duration, logger *slog.Logger) *Correlator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{lookup: lookup, timeout: timeout, logger: logger}
}

// Enabled reports whether a tracker is wired.
func (c *Correlator) Enabled() bool {
	return c != nil && c.lookup != nil
}

// Correlate extracts a key from subject and resolves it. A lookup error is
// returned together with the extracted key so the caller can retry later.
func (c *Correlator) Correlate(ctx context.Context, subject string) (Correlation, error) {
	if !c.Enabled() {
		return Correlation{}, nil
	}
	key, ok := ExtractTicketKey(subject)
	if !ok {
		return Correlation{}, nil
	}
	return c.Resolve(ctx, key)
}

// Resolve looks up an already extracted key.
func (c *Correlator) Resolve(ctx context.Context, key string) (Correlation, error) {
	result := Correlation{TicketKey: key}
	if !c.Enabled() {
		return result, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticket, err := c.lookup.LookupTicket(callCtx, key)
	if err != nil {
		return result, err
	}
	if ticket == nil {
		c.logger.DebugContext(ctx, "ticket did not resolve", "key", key)
	}
	result.Ticket = ticket
	return result, nil
}
