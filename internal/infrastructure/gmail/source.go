package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/infrastructure/htmltext"
	"KnowledgeScanner/internal/ports"
)

// Kind is the connector kind used in source configuration.
const Kind = "gmail"

// Source lists and fetches mailbox messages.
type Source struct {
	svc    *gmail.Service
	user   string
	logger *slog.Logger
}

var _ ports.SourceConnector = (*Source)(nil)

// NewSource wraps an authenticated service for the given mailbox user.
func NewSource(svc *gmail.Service, user string, logger *slog.Logger) *Source {
	if user == "" {
		user = "me"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{svc: svc, user: user, logger: logger}
}

// Kind implements the connector registry contract.
func (s *Source) Kind() string { return Kind }

// SearchQuery builds the Gmail search expression for a subject filter and
// an optional lower bound.
func SearchQuery(filter string, since *time.Time) string {
	var parts []string
	if filter = strings.TrimSpace(filter); filter != "" {
		parts = append(parts, fmt.Sprintf("subject:%q", filter))
	}
	if since != nil {
		parts = append(parts, fmt.Sprintf("after:%d", since.Unix()))
	}
	return strings.Join(parts, " ")
}

// List returns every message whose subject matches q.Filter, oldest first.
// q.Limit is the page size; pages are followed until the listing is
// exhausted so a burst larger than one page is never cut off by the
// after: watermark.
func (s *Source) List(ctx context.Context, q ports.Query) ([]domain.ItemRef, error) {
	call := s.svc.Users.Messages.List(s.user).Q(SearchQuery(q.Filter, q.Since))
	if q.Limit > 0 {
		call = call.MaxResults(int64(q.Limit))
	}

	var (
		refs  []domain.ItemRef
		pages int
	)
	err := call.Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		pages++
		for _, m := range resp.Messages {
			if m == nil || m.Id == "" {
				continue
			}
			refs = append(refs, domain.ItemRef{ID: m.Id})
		}
		return nil
	})
	if err != nil {
		return nil, classify("list messages", err)
	}

	// Gmail lists newest first.
	slices.Reverse(refs)
	s.logger.DebugContext(ctx, "gmail listed", "count", len(refs), "pages", pages, "filter", q.Filter)
	return refs, nil
}

// Fetch loads the full message and extracts a plain-text body.
func (s *Source) Fetch(ctx context.Context, id string) (domain.Item, error) {
	msg, err := s.svc.Users.Messages.Get(s.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return domain.Item{}, classify("get message", err)
	}
	if msg.Payload == nil {
		return domain.Item{}, fmt.Errorf("%w: message %s has no payload", domain.ErrMalformedResponse, id)
	}

	item := domain.Item{
		ID:         msg.Id,
		Subject:    header(msg.Payload, "Subject"),
		Sender:     header(msg.Payload, "From"),
		RawContent: messageBody(msg.Payload),
	}
	if msg.InternalDate > 0 {
		item.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}
	if item.ID == "" {
		item.ID = id
	}
	return item, nil
}

func header(part *gmail.MessagePart, name string) string {
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return strings.TrimSpace(h.Value)
		}
	}
	return ""
}

// messageBody prefers text/plain, then text/html stripped to text.
func messageBody(payload *gmail.MessagePart) string {
	if text := findPart(payload, "text/plain"); text != "" {
		return strings.TrimSpace(text)
	}
	if markup := findPart(payload, "text/html"); markup != "" {
		return htmltext.ToText(markup)
	}
	return ""
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(part.MimeType), mimeType) && part.Body != nil && part.Body.Data != "" {
		if data, err := decodeBody(part.Body.Data); err == nil {
			return data
		}
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func decodeBody(data string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return "", err
		}
	}
	return string(raw), nil
}
