package gmail

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"google.golang.org/api/gmail/v1"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

// Sender delivers review requests through the Gmail send endpoint.
type Sender struct {
	svc    *gmail.Service
	user   string
	from   string
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.Notifier = (*Sender)(nil)

// NewSender wires the mailbox used as sender.
func NewSender(svc *gmail.Service, user, from string, logger *slog.Logger) *Sender {
	if user == "" {
		user = "me"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{svc: svc, user: user, from: from, now: time.Now, logger: logger}
}

// Notify sends n as a single HTML email.
func (s *Sender) Notify(ctx context.Context, n domain.Notification) error {
	if n.To == "" {
		return domain.Configf("notification has no recipient")
	}

	raw := buildMessage(
		sanitizeHeader(s.from),
		sanitizeHeader(n.To),
		sanitizeHeader(n.Subject),
		n.Body,
		s.now(),
	)

	sent, err := s.svc.Users.Messages.Send(s.user, &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return classify("send message", err)
	}

	s.logger.DebugContext(ctx, "gmail sent", "to", n.To, "message_id", sent.Id)
	return nil
}
