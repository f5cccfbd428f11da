package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/dedup"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
	"poetry-pipeline/internal/domain/structured"
)

type GlossResult struct {
	Words      int
	Lines      int
	WordsModel string
	LinesModel string
	Cost       float64
}


// Gloss attaches a vocabulary and per-line explanations to a poem, trying
// the configured models in order.
type Gloss struct {
	poems  repository.PoemRepository
	gens   adapter.GeneratorResolver
	models []string
	log    *zerolog.Logger
}

func NewGloss(poems repository.PoemRepository, gens adapter.GeneratorResolver, models []string, logger *zerolog.Logger) *Gloss {
	return &Gloss{poems: poems, gens: gens, models: models, log: logger}
}

// Run fills whichever gloss is still missing. Both failing is not an error;
// the poem simply has no gloss.
func (u *Gloss) Run(ctx context.Context, poem *model.Poem) (*GlossResult, error) {
	res := &GlossResult{Words: len(poem.Vocabulary), Lines: len(poem.LineExplanations)}
	content := poem.DisplayContent()

	if len(poem.Vocabulary) == 0 {
		vocab, modelID, cost := u.firstValid(ctx, vocabularyPrompt(content, poem.Language), 1500, func(text string) []dedup.Gloss {
			return glossEntries(text, vocabularySchema, "word", "definition")
		})
		res.Cost += cost
		if len(vocab) > 0 {
			if err := u.poems.Update(ctx, repository.NoTX, poem.ID, model.PoemPatch{Vocabulary: vocab}); err != nil {
				return res, err
			}
			poem.Vocabulary = vocab
			res.Words, res.WordsModel = len(vocab), modelID
		}
	}

	if len(poem.LineExplanations) == 0 {
		lines, modelID, cost := u.firstValid(ctx, linesPrompt(content, poem.Language), 2000, func(text string) []dedup.Gloss {
			return glossEntries(text, linesSchema, "line", "explanation")
		})
		res.Cost += cost
		if len(lines) > 0 {
			if err := u.poems.Update(ctx, repository.NoTX, poem.ID, model.PoemPatch{LineExplanations: lines}); err != nil {
				return res, err
			}
			poem.LineExplanations = lines
			res.Lines, res.LinesModel = len(lines), modelID
		}
	}

	if res.Words == 0 && res.Lines == 0 {
		return res, fmt.Errorf("gloss: every model failed: %w", domain.ErrExtraction)
	}
	return res, nil
}

// firstValid returns the normalized entries of the first model that yields at least one.
func (u *Gloss) firstValid(ctx context.Context, prompt string, maxTokens int, parse func(string) []dedup.Gloss) (map[string]string, string, float64) {
	var cost float64
	for _, id := range u.models {
		gen, err := u.gens.Resolve(id)
		if err != nil {
			u.log.Debug().Str("model", id).Msg("gloss model not configured")
			continue
		}
		out, err := gen.Generate(ctx, prompt, adapter.GenerateOptions{Temperature: 0.3, MaxTokens: maxTokens, JSON: true})
		if err != nil {
			u.log.Warn().Err(err).Str("model", id).Msg("gloss model failed")
			continue
		}
		cost += out.CostUSD
		if m := dedup.NormalizeKeys(parse(out.Text)); len(m) > 0 {
			return m, gen.Model(), cost
		}
		u.log.Warn().Str("model", id).Msg("gloss model returned no valid entries")
	}
	return nil, "", cost
}

// glossEntries keeps the array items that carry string key and value fields.
func glossEntries(text string, schema *structured.Schema, keyField, valueField string) []dedup.Gloss {
	items, ok := structured.Decode[[]any](text, schema)
	if !ok {
		return nil
	}
	out := make([]dedup.Gloss, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		k, kok := obj[keyField].(string)
		v, vok := obj[valueField].(string)
		if !kok || !vok {
			continue
		}
		out = append(out, dedup.Gloss{Key: k, Value: v})
	}
	return out
}
