package confluence

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"KnowledgeScanner/internal/domain"
)

func TestRenderPageGolden(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		entry domain.QueueEntry
	}{
		{
			name: "printer_toner",
			entry: domain.QueueEntry{
				Source:     "inbox",
				SourceID:   "m1",
				Sender:     "ops@example.com",
				ReceivedAt: time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC),
				Summary:    "Toner swap for printer 3.\nUse cartridge HP-26X.\n\nOrder spares from the supplier portal.",
			},
		},
		{
			name: "correlated_ticket",
			entry: domain.QueueEntry{
				Source:              "inbox",
				SourceID:            "m7",
				Sender:              `"Ops Team" <ops@example.com>`,
				CorrelatedTicketKey: "ABC-123",
				TicketStatus:        "Resolved",
				CorrelatedAssignee:  "dev@example.com",
				Summary:             "Rotate the <gateway> certificate & restart.",
			},
		},
		{
			name:  "empty_summary",
			entry: domain.QueueEntry{SourceID: "m9", Summary: "  "},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g.Assert(t, tc.name, []byte(RenderPage(tc.entry)))
		})
	}
}
