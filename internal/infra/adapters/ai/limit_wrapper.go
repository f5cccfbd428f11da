package ai

import (
	"context"
	"time"

	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/infra/metrics"
)

// Compile-time check
var _ adapter.TextGenerator = (*limitedGenerator)(nil)

// limitedGenerator caps concurrent calls to one provider and records usage metrics.
type limitedGenerator struct {
	inner adapter.TextGenerator
	sem   chan struct{}
}

func NewLimitedGenerator(inner adapter.TextGenerator, maxConcurrent int) adapter.TextGenerator {
	l := &limitedGenerator{inner: inner}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

func (l *limitedGenerator) Provider() model.Provider { return l.inner.Provider() }
func (l *limitedGenerator) Model() string            { return l.inner.Model() }

func (l *limitedGenerator) Generate(ctx context.Context, prompt string, opts adapter.GenerateOptions) (adapter.Generation, error) {
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return adapter.Generation{}, ctx.Err()
		}
		defer func() { <-l.sem }()
	}

	start := time.Now()
	gen, err := l.inner.Generate(ctx, prompt, opts)
	metrics.ObserveGeneration(string(l.inner.Provider()), l.inner.Model(),
		gen.Usage.InputTokens, gen.Usage.OutputTokens, gen.Usage.TotalTokens,
		gen.CostUSD, time.Since(start).Milliseconds(), err == nil)
	return gen, err
}
