package confluence

import (
	"fmt"
	"html"
	"strings"

	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
	"KnowledgeScanner/pkg/textblock"
)

// Renderer produces Confluence storage-format bodies.
type Renderer struct{}

var _ ports.PageRenderer = Renderer{}

// Render implements ports.PageRenderer.
func (Renderer) Render(entry domain.QueueEntry) (string, error) {
	return RenderPage(entry), nil
}

// RenderPage lays out a metadata table followed by the summary. Every
// value is escaped; blank-line separated blocks become paragraphs and
// single newlines become line breaks.
func RenderPage(entry domain.QueueEntry) string {
	var b strings.Builder

	b.WriteString("<table><tbody>\n")
	row := func(name, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>\n", name, html.EscapeString(value))
	}
	row("Source", entry.Source)
	row("Source ID", entry.SourceID)
	row("Sender", entry.Sender)
	if !entry.ReceivedAt.IsZero() {
		row("Received", entry.ReceivedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	ticket := entry.CorrelatedTicketKey
	if ticket != "" && entry.TicketStatus != "" {
		ticket += " (" + entry.TicketStatus + ")"
	}
	row("Ticket", ticket)
	row("Assignee", entry.CorrelatedAssignee)
	b.WriteString("</tbody></table>\n")

	b.WriteString("<h2>Summary</h2>\n")
	blocks := textblock.Split(entry.Summary)
	if len(blocks) == 0 {
		b.WriteString("<p><em>No content.</em></p>\n")
	}
	b.WriteString(textblock.HTML(blocks))

	return b.String()
}
