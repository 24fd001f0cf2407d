package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

const contentPath = "/wiki/rest/api/content"

// Publisher creates pages through the Confluence content REST API.
type Publisher struct {
	baseURL string
	email   string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

var _ ports.Publisher = (*Publisher)(nil)

// NewPublisher creates a reusable HTTP client from configuration.
func NewPublisher(cfg config.ConfluenceConfig, logger *slog.Logger) *Publisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		email:   cfg.Email,
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type label struct {
	Prefix string `json:"prefix"`
	Name   string `json:"name"`
}

type contentRequest struct {
	Type   string         `json:"type"`
	Title  string         `json:"title"`
	Status string         `json:"status"`
	Space  map[string]any `json:"space"`
	Body   map[string]any `json:"body"`
	Meta   map[string]any `json:"metadata,omitempty"`
}

// Publish creates one page and returns its id. Failures are *domain.PublishError.
func (p *Publisher) Publish(ctx context.Context, page domain.Page) (string, error) {
	status := "current"
	if page.Draft {
		status = "draft"
	}

	payload := contentRequest{
		Type:   "page",
		Title:  page.Title,
		Status: status,
		Space:  map[string]any{"key": page.SpaceKey},
		Body: map[string]any{
			"storage": map[string]string{
				"value":          page.Body,
				"representation": "storage",
			},
		},
	}
	if labels := toLabels(page.Labels); len(labels) > 0 {
		payload.Meta = map[string]any{"labels": labels}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &domain.PublishError{Kind: domain.PublishMalformed, Err: fmt.Errorf("marshal page: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+contentPath, bytes.NewReader(body))
	if err != nil {
		return "", &domain.PublishError{Kind: domain.PublishMalformed, Err: fmt.Errorf("new request: %w", err)}
	}
	req.SetBasicAuth(p.email, p.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", &domain.PublishError{Kind: domain.PublishTransient, Err: errors.Join(domain.ErrTransient, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", classify(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.ID == "" {
		if err == nil {
			err = errors.New("response has no id")
		}
		return "", &domain.PublishError{
			Kind:   domain.PublishMalformed,
			Status: resp.StatusCode,
			Err:    errors.Join(domain.ErrMalformedResponse, err),
		}
	}

	p.logger.DebugContext(ctx, "page created", "id", created.ID, "title", page.Title, "status", status)
	return created.ID, nil
}

func toLabels(names []string) []label {
	var out []label
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, label{Prefix: "global", Name: n})
		}
	}
	return out
}

func classify(status int, body string) error {
	err := fmt.Errorf("confluence: %s", body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.PublishError{Kind: domain.PublishAuth, Status: status, Err: err}
	case status == http.StatusTooManyRequests:
		return &domain.PublishError{Kind: domain.PublishRateLimit, Status: status, Err: errors.Join(domain.ErrTransient, err)}
	case status >= http.StatusInternalServerError:
		return &domain.PublishError{Kind: domain.PublishTransient, Status: status, Err: errors.Join(domain.ErrTransient, err)}
	default:
		return &domain.PublishError{Kind: domain.PublishMalformed, Status: status, Err: err}
	}
}
