package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
	"poetry-pipeline/internal/domain/structured"
)

type comparison struct {
	Content       string `json:"comparisonContent"`
	Agreements    []any  `json:"agreements"`
	Disagreements []any  `json:"disagreements"`
	Insights      []any  `json:"insights"`
}

type CompareResult struct {
	Synthesis *model.Synthesis
	Cost      float64
}

type Compare struct {
	comments  repository.CommentaryRepository
	syntheses repository.SynthesisRepository
	gens      adapter.GeneratorResolver
	model     string
	log       *zerolog.Logger
}

func NewCompare(comments repository.CommentaryRepository, syntheses repository.SynthesisRepository, gens adapter.GeneratorResolver, modelID string, logger *zerolog.Logger) *Compare {
	return &Compare{comments: comments, syntheses: syntheses, gens: gens, model: modelID, log: logger}
}

// Run synthesizes the completed commentaries of poem. It needs at least two.
func (u *Compare) Run(ctx context.Context, poem *model.Poem) (*CompareResult, error) {
	comments, err := u.comments.ListCompleted(ctx, repository.NoTX, poem.ID)
	if err != nil {
		return nil, err
	}
	if len(comments) < 2 {
		return nil, fmt.Errorf("%d completed: %w", len(comments), domain.ErrNotEnoughCommentaries)
	}

	gen, err := u.gens.Resolve(u.model)
	if err != nil {
		return nil, err
	}
	out, err := gen.Generate(ctx, comparisonPrompt(poem.DisplayTitle(), poem.Language, comments), adapter.GenerateOptions{
		Temperature: 0.4,
		MaxTokens:   4096,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("compare with %s: %w", gen.Model(), err)
	}
	got, ok := structured.Decode[comparison](out.Text, comparisonSchema)
	if !ok {
		return &CompareResult{Cost: out.CostUSD}, fmt.Errorf("comparison: %w", domain.ErrExtraction)
	}

	s := model.NewSynthesis(poem.ID, gen.Provider())
	s.Content = got.Content
	s.Agreements = stringItems(got.Agreements)
	s.Disagreements = stringItems(got.Disagreements)
	s.Insights = insightItems(got.Insights)
	s.TokensUsed = out.Usage.TotalTokens
	s.CostUSD = out.CostUSD
	if err := u.syntheses.Upsert(ctx, repository.NoTX, s); err != nil {
		return &CompareResult{Cost: out.CostUSD}, err
	}
	return &CompareResult{Synthesis: s, Cost: out.CostUSD}, nil
}

// stringItems keeps the non-empty strings of a decoded array.
func stringItems(items []any) []string {
	out := []string{}
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// insightItems keeps the objects with a string model and insight.
func insightItems(items []any) []model.ProviderInsight {
	out := []model.ProviderInsight{}
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		m, mok := obj["model"].(string)
		in, iok := obj["insight"].(string)
		if !mok || !iok || strings.TrimSpace(in) == "" {
			continue
		}
		out = append(out, model.ProviderInsight{Model: m, Insight: in})
	}
	return out
}
