package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"KnowledgeScanner/internal/config"
	"KnowledgeScanner/internal/domain"
	"KnowledgeScanner/internal/ports"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiClient implements ports.Summarizer with the Gemini SDK.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

var _ ports.Summarizer = (*GeminiClient)(nil)

// NewGeminiClient dials the Gemini API. An endpoint override is honoured for
// proxies.
func NewGeminiClient(ctx context.Context, cfg config.SummarizerConfig) (*GeminiClient, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, domain.Configf("gemini client: %v", err)
	}

	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}
	model := client.GenerativeModel(name)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(instruction(cfg.Instruction))},
	}

	return &GeminiClient{client: client, model: model}, nil
}

// Summarize generates a single candidate and concatenates its text parts.
func (g *GeminiClient) Summarize(ctx context.Context, content string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(content))
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate: %v", domain.ErrTransient, err)
	}
	return responseText(resp)
}

// Close releases the underlying connection.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: gemini response has no candidates", domain.ErrMalformedResponse)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String()), nil
}
