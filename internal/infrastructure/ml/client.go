package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

const summarizeTask = "summarize"

// Client talks to a hosted prediction endpoint that follows the
// {"instances": [...]} / {"predictions": [...]} convention.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Summarizer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.SummarizerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type instance struct {
	Content string `json:"content"`
	Task    string `json:"task"`
}

// Summarize requests a summary for a single instance.
func (c *Client) Summarize(ctx context.Context, content string) (string, error) {
	payload := map[string]any{
		"instances": []instance{{Content: content, Task: summarizeTask}},
	}

	var resp struct {
		Predictions []json.RawMessage `json:"predictions"`
	}
	if err := c.post(ctx, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Predictions) == 0 {
		return "", fmt.Errorf("%w: prediction response is empty", domain.ErrMalformedResponse)
	}

	return predictionText(resp.Predictions[0])
}

// predictionText accepts either a bare string or an object with a summary
// or content field.
func predictionText(raw json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text), nil
	}

	var obj struct {
		Summary string `json:"summary"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("%w: prediction: %v", domain.ErrMalformedResponse, err)
	}
	if obj.Summary != "" {
		return strings.TrimSpace(obj.Summary), nil
	}
	return strings.TrimSpace(obj.Content), nil
}

func (c *Client) post(ctx context.Context, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: do request: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: unexpected status %s", domain.ErrTransient, resp.Status)
		}
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}
