package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
	"poetry-pipeline/internal/domain/structured"
)

type AnalyzeResult struct {
	// Completed counts every completed commentary of the poem, including
	// ones kept from an earlier attempt.
	Completed int
	Failed    int
	// Reused lists providers skipped because they already completed.
	Reused []model.Provider
	Errors map[model.Provider]string
	Cost   float64
}

type analysis struct {
	Literary  string `json:"literaryAnalysis"`
	Thematic  string `json:"thematicAnalysis"`
	Emotional string `json:"emotionalAnalysis"`
	Cultural  string `json:"culturalAnalysis"`
	Hebrew    string `json:"hebrewAnalysis"`
}

type providerOutcome struct {
	provider model.Provider
	cost     float64
	err      error
}

type Analyze struct {
	comments repository.CommentaryRepository
	gens     adapter.GeneratorResolver
	observer PhaseObserver
	log      *zerolog.Logger
}

func NewAnalyze(comments repository.CommentaryRepository, gens adapter.GeneratorResolver, observer PhaseObserver, logger *zerolog.Logger) *Analyze {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Analyze{comments: comments, gens: gens, observer: observer, log: logger}
}

// Run sends the same prompt to every commentary provider at once and waits
// for all of them. One provider failing never affects the others.
func (u *Analyze) Run(ctx context.Context, poem *model.Poem) (*AnalyzeResult, error) {
	existing, err := u.comments.ListCompleted(ctx, repository.NoTX, poem.ID)
	if err != nil {
		return nil, err
	}
	done := make(map[model.Provider]bool, len(existing))
	for _, c := range existing {
		done[c.Provider] = true
	}

	res := &AnalyzeResult{Completed: len(existing), Errors: map[model.Provider]string{}}
	prompt := analysisPrompt(poem.DisplayTitle(), poem.DisplayAuthor(), poem.DisplayContent(), poem.Themes, poem.Language)

	var pending []adapter.TextGenerator
	for _, gen := range u.gens.Commentators() {
		if done[gen.Provider()] {
			res.Reused = append(res.Reused, gen.Provider())
			continue
		}
		pending = append(pending, gen)
	}

	outcomes := make([]providerOutcome, len(pending))
	var wg sync.WaitGroup
	for i, gen := range pending {
		wg.Add(1)
		go func(i int, gen adapter.TextGenerator) {
			defer wg.Done()
			outcomes[i] = u.commentate(ctx, poem, gen, prompt)
		}(i, gen)
	}
	wg.Wait()

	for _, o := range outcomes {
		res.Cost += o.cost
		if o.err != nil {
			res.Failed++
			res.Errors[o.provider] = o.err.Error()
			u.observer.FanoutOutcome(string(o.provider), "failed")
			u.log.Warn().Err(o.err).Str("provider", string(o.provider)).Str("poem_id", poem.ID).Msg("commentary failed")
			continue
		}
		res.Completed++
		u.observer.FanoutOutcome(string(o.provider), "completed")
	}
	return res, nil
}

// commentate makes one provider call, plus one stricter retry when the answer
// cannot be extracted. Only a successful commentary is stored.
func (u *Analyze) commentate(ctx context.Context, poem *model.Poem, gen adapter.TextGenerator, prompt string) providerOutcome {
	out := providerOutcome{provider: gen.Provider()}
	start := time.Now()
	opts := adapter.GenerateOptions{Temperature: 0.5, MaxTokens: 4096, JSON: true}

	var (
		got    analysis
		raw    []byte
		tokens int
	)
	for attempt := 0; attempt < 2; attempt++ {
		p := prompt
		if attempt > 0 {
			p += strictSuffix
		}
		g, err := gen.Generate(ctx, p, opts)
		if err != nil {
			out.err = fmt.Errorf("%s: %w", gen.Model(), err)
			return out
		}
		out.cost += g.CostUSD
		tokens += g.Usage.TotalTokens

		var ok bool
		if got, raw, ok = structured.DecodeRaw[analysis](g.Text, analysisSchema); ok {
			out.err = nil
			break
		}
		out.err = fmt.Errorf("%s (finish=%s): %w", gen.Model(), g.FinishReason, domain.ErrExtraction)
	}
	if out.err != nil {
		return out
	}

	c := model.NewCommentary(poem.ID, gen.Provider(), gen.Model())
	c.Literary = got.Literary
	c.Thematic = got.Thematic
	c.Emotional = got.Emotional
	c.Cultural = got.Cultural
	c.Hebrew = got.Hebrew
	c.Raw = raw
	c.TokensUsed = tokens
	c.CostUSD = out.cost
	c.Duration = time.Since(start)
	if err := u.comments.Create(ctx, repository.NoTX, c); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return out
		}
		out.err = fmt.Errorf("store commentary: %w", err)
	}
	return out
}
