package usecase

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/pkg/textblock"
)

// BuildNotification renders the review request for entry. The body is HTML
// with the summary and the operator links for publishing or discarding.
func BuildNotification(entry domain.QueueEntry, to, reviewURL string) domain.Notification {
	var b strings.Builder

	fmt.Fprintf(&b, "<p>A new item is waiting for review: <b>%s</b></p>\n", html.EscapeString(entry.Subject))
	if entry.CorrelatedTicketKey != "" {
		fmt.Fprintf(&b, "<p>Ticket: %s", html.EscapeString(entry.CorrelatedTicketKey))
		if entry.TicketStatus != "" {
			fmt.Fprintf(&b, " (%s)", html.EscapeString(entry.TicketStatus))
		}
		b.WriteString("</p>\n")
	}

	b.WriteString(textblock.HTML(textblock.Split(entry.Summary)))

	fmt.Fprintf(&b, "<p>Entry ID: %s</p>\n", html.EscapeString(entry.SourceID))

	if base := strings.TrimRight(reviewURL, "/"); base != "" {
		discard := base + "/queue/" + url.PathEscape(entry.SourceID) + "/discard"
		fmt.Fprintf(&b, "<p>Approve all pending entries: POST %s/drain<br/>Discard this entry: POST %s</p>\n",
			html.EscapeString(base), html.EscapeString(discard))
	}

	return domain.Notification{
		To:      to,
		Subject: "Review requested: " + entry.Subject,
		Body:    b.String(),
	}
}
