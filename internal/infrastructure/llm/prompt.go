package llm

import (
	"fmt"
	"net/http"
	"strings"

	"KnowledgeScanner/internal/domain"
)

const defaultInstruction = "Summarize the following message for an internal knowledge base article. " +
	"Keep the problem, the resolution steps and any outcome. Drop greetings, signatures and quoted replies."

func instruction(custom string) string {
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return defaultInstruction
	}
	return custom
}

// statusError maps an HTTP status of a summarizer backend onto the error taxonomy.
func statusError(backend string, status int, body string) error {
	body = strings.TrimSpace(body)
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s status %d: %s", domain.ErrTransient, backend, status, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s rejected credentials (status %d)", domain.ErrConfiguration, backend, status)
	default:
		return fmt.Errorf("%s status %d: %s", backend, status, body)
	}
}
