package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/infra/metrics"
)

// Tool is a Researcher that knows whether it is configured.
type Tool interface {
	adapter.Researcher
	Name() string
	Available() bool
}

var _ adapter.Researcher = (*Chain)(nil)

// Chain tries the primary tool, then every other available tool in registration order.
type Chain struct {
	primary string
	tools   []Tool
	log     *zerolog.Logger
}

func NewChain(primary string, logger *zerolog.Logger, tools ...Tool) *Chain {
	l := logger.With().Str("component", "ResearchChain").Logger()
	return &Chain{primary: primary, tools: tools, log: &l}
}

func (c *Chain) order() []Tool {
	var out []Tool
	for _, t := range c.tools {
		if t.Name() == c.primary && t.Available() {
			out = append(out, t)
		}
	}
	for _, t := range c.tools {
		if t.Name() != c.primary && t.Available() {
			out = append(out, t)
		}
	}
	return out
}

func (c *Chain) Research(ctx context.Context, query string, opts adapter.ResearchOptions) (adapter.ResearchResult, error) {
	var errs []error
	for _, t := range c.order() {
		res, err := t.Research(ctx, query, opts)
		metrics.IncResearch(t.Name(), err == nil)
		if err == nil {
			return res, nil
		}
		c.log.Warn().Err(err).Str("tool", t.Name()).Msg("research tool failed, falling back")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return adapter.ResearchResult{}, fmt.Errorf("no research tool configured: %w", domain.ErrProviderUnavailable)
	}
	return adapter.ResearchResult{}, fmt.Errorf("all research tools failed: %w", errors.Join(errs...))
}
