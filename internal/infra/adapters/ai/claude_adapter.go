package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
)

var _ adapter.TextGenerator = (*ClaudeAdapter)(nil)

// ClaudeAdapter wraps the Anthropic Messages API.
type ClaudeAdapter struct {
	client anthropic.Client
	model  string
}

func NewClaudeAdapter(apiKey, model, baseURL string, timeout time.Duration) (*ClaudeAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("claude: empty api key")
	}
	if model == "" {
		model = "claude-opus-4-5-20251101"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &ClaudeAdapter{client: anthropic.NewClient(opts...), model: model}, nil
}

func (c *ClaudeAdapter) Provider() model.Provider { return model.ProviderClaude }
func (c *ClaudeAdapter) Model() string            { return c.model }

func (c *ClaudeAdapter) Generate(ctx context.Context, prompt string, opts adapter.GenerateOptions) (adapter.Generation, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(opts.Temperature),
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return adapter.Generation{}, fmt.Errorf("claude: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return adapter.Generation{
		Text:         text.String(),
		Usage:        adapter.Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
		CostUSD:      Cost(c.model, in, out),
		FinishReason: string(resp.StopReason),
		Model:        c.model,
	}, nil
}
