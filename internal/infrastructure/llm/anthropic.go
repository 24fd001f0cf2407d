package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	anthropicMaxTokens    = 1024
)

// AnthropicClient implements ports.Summarizer with the Messages API.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	instruction string
}

var _ ports.Summarizer = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client; Endpoint overrides the API base URL.
func NewAnthropicClient(cfg config.SummarizerConfig) *AnthropicClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := []anthropicopt.RequestOption{
		anthropicopt.WithAPIKey(cfg.APIKey),
		anthropicopt.WithHTTPClient(&http.Client{Timeout: timeout}),
		anthropicopt.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, anthropicopt.WithBaseURL(cfg.Endpoint))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicClient{
		client:      anthropic.NewClient(opts...),
		model:       model,
		instruction: instruction(cfg.Instruction),
	}
}

// Summarize sends the instruction and content as one user turn.
func (c *AnthropicClient) Summarize(ctx context.Context, content string) (string, error) {
	prompt := c.instruction + "\n\n" + content

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError("anthropic", apiErr.StatusCode, apiErr.Error())
		}
		return "", fmt.Errorf("%w: anthropic request: %v", domain.ErrTransient, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: anthropic response has no text", domain.ErrMalformedResponse)
	}
	return strings.TrimSpace(b.String()), nil
}
