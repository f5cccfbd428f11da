// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"fmt"
	"strings"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
)

var _ adapter.GeneratorResolver = (*Resolver)(nil)

// Resolver routes model ids and provider tags to configured generators.
type Resolver struct {
	byProvider   map[model.Provider]adapter.TextGenerator
	byModel      map[string]adapter.TextGenerator // canonical model -> generator
	commentators []adapter.TextGenerator
}

// NewResolver indexes gens by provider and canonical model. commentaryModels
// picks the fan-out set in order; ids with no configured generator are skipped.
func NewResolver(gens []adapter.TextGenerator, commentaryModels []string) *Resolver {
	r := &Resolver{
		byProvider: make(map[model.Provider]adapter.TextGenerator, len(gens)),
		byModel:    make(map[string]adapter.TextGenerator, len(gens)),
	}
	for _, g := range gens {
		if g == nil {
			continue
		}
		if _, ok := r.byProvider[g.Provider()]; !ok {
			r.byProvider[g.Provider()] = g
		}
		r.byModel[CanonicalModel(g.Model())] = g
	}
	seen := map[adapter.TextGenerator]bool{}
	for _, id := range commentaryModels {
		g, err := r.Resolve(id)
		if err != nil || seen[g] {
			continue
		}
		seen[g] = true
		r.commentators = append(r.commentators, g)
	}
	return r
}

func providerFor(modelID string) model.Provider {
	l := strings.ToLower(strings.TrimSpace(modelID))
	switch {
	case l == "claude" || strings.HasPrefix(l, "claude"):
		return model.ProviderClaude
	case l == "gpt" || strings.HasPrefix(l, "gpt") || strings.HasPrefix(l, "o1") || strings.HasPrefix(l, "o3"):
		return model.ProviderGPT
	case l == "gemini" || strings.HasPrefix(l, "gemini"):
		return model.ProviderGemini
	}
	return ""
}

// Resolve accepts a model id ("claude-opus-4-5", "gpt-4o") or a provider tag ("GEMINI").
// An exact model match wins; otherwise the provider's generator is returned.
func (r *Resolver) Resolve(modelID string) (adapter.TextGenerator, error) {
	if g := r.byModel[CanonicalModel(modelID)]; g != nil {
		return g, nil
	}
	if g := r.byProvider[providerFor(modelID)]; g != nil {
		return g, nil
	}
	return nil, fmt.Errorf("model %q: %w", modelID, domain.ErrProviderUnavailable)
}

func (r *Resolver) Commentators() []adapter.TextGenerator {
	return append([]adapter.TextGenerator(nil), r.commentators...)
}
