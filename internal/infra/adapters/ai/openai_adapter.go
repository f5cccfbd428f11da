package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.TextGenerator = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.TextGenerator using the Chat Completions API.
type OpenAIAdapter struct {
	client openai.Client
	model  string
}

// NewOpenAIClient builds the SDK client shared by the chat adapter and the DALL-E illustrator.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) (openai.Client, error) {
	if apiKey == "" {
		return openai.Client{}, errors.New("openai api key empty")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return openai.NewClient(opts...), nil
}

func NewOpenAIAdapter(client openai.Client, model string) *OpenAIAdapter {
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	return &OpenAIAdapter{client: client, model: model}
}

func (o *OpenAIAdapter) Provider() model.Provider { return model.ProviderGPT }
func (o *OpenAIAdapter) Model() string            { return o.model }

func (o *OpenAIAdapter) Generate(ctx context.Context, prompt string, opts adapter.GenerateOptions) (adapter.Generation, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if opts.System != "" {
		messages = append(messages, openai.SystemMessage(opts.System))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return adapter.Generation{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return adapter.Generation{}, errors.New("openai: no choices")
	}
	text := resp.Choices[0].Message.Content

	in, out := int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens)
	if in == 0 && out == 0 {
		in, out = EstimateTokens(opts.System+prompt), EstimateTokens(text)
	}
	total := int(resp.Usage.TotalTokens)
	if total == 0 {
		total = in + out
	}
	return adapter.Generation{
		Text:         text,
		Usage:        adapter.Usage{InputTokens: in, OutputTokens: out, TotalTokens: total},
		CostUSD:      Cost(o.model, in, out),
		FinishReason: string(resp.Choices[0].FinishReason),
		Model:        o.model,
	}, nil
}
