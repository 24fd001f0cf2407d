package textblock

import (
	"fmt"
	"html"
	"strings"
)

// Split breaks text into paragraphs. Any line that is blank after trimming
// ends a paragraph; lines inside a paragraph keep their order with trailing
// whitespace removed.
func Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		out []string
		cur []string
	)
	flush := func() {
		if p := strings.TrimSpace(strings.Join(cur, "\n")); p != "" {
			out = append(out, p)
		}
		cur = cur[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, strings.TrimRight(line, " \t"))
	}
	flush()
	return out
}

// HTML renders each paragraph as an escaped <p> element, one per line, with
// inner newlines as <br/>.
func HTML(paragraphs []string) string {
	var b strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&b, "<p>%s</p>\n", strings.ReplaceAll(html.EscapeString(p), "\n", "<br/>"))
	}
	return b.String()
}
