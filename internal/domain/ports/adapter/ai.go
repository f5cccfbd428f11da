package adapter

import (
	"context"

	"poetry-pipeline/internal/domain/model"
)

// GenerateOptions tune a single generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	System      string
	// JSON asks the provider for structured output when it supports a native mode.
	JSON bool
}

// Usage for a single generation call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Generation is the result of one provider call.
type Generation struct {
	Text         string
	Usage        Usage
	CostUSD      float64
	FinishReason string
	Model        string
}

// TextGenerator is the port for one LLM provider/model pair.
// Implementations never retry; callers own retries so each attempt is accounted.
type TextGenerator interface {
	Provider() model.Provider
	Model() string
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (Generation, error)
}

// GeneratorResolver maps model ids to configured generators.
type GeneratorResolver interface {
	// Resolve returns the generator for a model id or provider tag.
	Resolve(modelID string) (TextGenerator, error)
	// Commentators lists the generators used for the analysis fan-out, in a stable order.
	Commentators() []TextGenerator
}
