package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/config"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/infra/adapters/ai"
	"poetry-pipeline/internal/infra/adapters/art"
	"poetry-pipeline/internal/infra/adapters/audio"
	"poetry-pipeline/internal/infra/adapters/catalog"
	"poetry-pipeline/internal/infra/adapters/research"
	pg "poetry-pipeline/internal/infra/db/postgres"
	"poetry-pipeline/internal/infra/logging"
	"poetry-pipeline/internal/infra/metrics"
	"poetry-pipeline/internal/usecase"
)

type providers struct {
	Resolver     *ai.Resolver
	Researcher   adapter.Researcher
	Catalog      adapter.PoemCatalog
	Registry     adapter.PoemRegistry
	Illustrators []adapter.Illustrator
	Speech       adapter.SpeechSynthesizer
	Music        adapter.MusicComposer
	Mixer        adapter.AudioMixer
	// SourceModels are the configured model ids the auto-generator may pick for generated poems.
	SourceModels []string
}

// buildProviders constructs every adapter whose key is configured. Optional
// providers stay nil interfaces so the phases can tell they are absent.
func buildProviders(ctx context.Context, cfg *config.Config, repos *pg.Repositories, logger *zerolog.Logger) (*providers, error) {
	p := &providers{}
	httpClient := &http.Client{Timeout: cfg.AI.Timeout}

	// ---- Text generators ----
	var gens []adapter.TextGenerator
	if cfg.AI.AnthropicKey != "" {
		c, err := ai.NewClaudeAdapter(cfg.AI.AnthropicKey, cfg.AI.ClaudeModel, "", cfg.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("claude adapter: %w", err)
		}
		gens = append(gens, ai.NewLimitedGenerator(c, cfg.AI.ConcurrentLimit))
		p.SourceModels = append(p.SourceModels, cfg.AI.ClaudeModel)
	}
	var dalle adapter.Illustrator
	if cfg.AI.OpenAIKey != "" {
		openaiClient, err := ai.NewOpenAIClient(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("openai client: %w", err)
		}
		dalle = art.NewDalle(openaiClient, cfg.Media.DalleModel)
		gens = append(gens, ai.NewLimitedGenerator(ai.NewOpenAIAdapter(openaiClient, cfg.AI.GPTModel), cfg.AI.ConcurrentLimit))
		p.SourceModels = append(p.SourceModels, cfg.AI.GPTModel)
	}
	if cfg.AI.GeminiKey != "" {
		g, err := ai.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.GeminiModel, cfg.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		gens = append(gens, ai.NewLimitedGenerator(g, cfg.AI.ConcurrentLimit))
		p.SourceModels = append(p.SourceModels, cfg.AI.GeminiModel)
	}
	logger.Debug().
		Str("anthropic_key", logging.Redact(cfg.AI.AnthropicKey, cfg.Runtime.Dev)).
		Str("openai_key", logging.Redact(cfg.AI.OpenAIKey, cfg.Runtime.Dev)).
		Str("gemini_key", logging.Redact(cfg.AI.GeminiKey, cfg.Runtime.Dev)).
		Strs("source_models", p.SourceModels).
		Msg("text generators configured")
	p.Resolver = ai.NewResolver(gens, cfg.AI.CommentaryModels)
	if n := len(p.Resolver.Commentators()); n < 2 {
		logger.Warn().Int("commentators", n).Msg("fewer than two commentary providers; comparison will be skipped")
	}

	// ---- Research ----
	chain := research.NewChain(cfg.Research.Primary, logger,
		research.NewPerplexity(cfg.Research.PerplexityKey, httpClient),
		research.NewExa(cfg.Research.ExaKey, httpClient),
		research.NewBrave(cfg.Research.BraveKey, httpClient),
	)
	if cfg.Research.PerplexityKey != "" || cfg.Research.ExaKey != "" || cfg.Research.BraveKey != "" {
		p.Researcher = chain
	} else {
		logger.Warn().Msg("no research tool configured; found poems come from the catalog and registry only")
	}

	// ---- Catalog and registry ----
	p.Catalog = catalog.NewPoetryDB(cfg.Media.PoetryDBURL, httpClient, logger)
	static, err := catalog.StaticRegistry()
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	p.Registry = catalog.NewRegistry(static, repos.Registry, repos.Poems, logger)

	// ---- Illustration ----
	if g, err := p.Resolver.Resolve(cfg.Pipeline.IllustrationModel); err == nil {
		p.Illustrators = append(p.Illustrators, art.NewMinimalist(g, logger))
	} else {
		logger.Warn().Err(err).Msg("minimalist illustrator disabled")
	}
	if dalle != nil {
		p.Illustrators = append(p.Illustrators, dalle)
	}

	// ---- Narration ----
	if cfg.Media.ElevenLabsKey != "" {
		el, err := audio.NewElevenLabs(cfg.Media.ElevenLabsKey, cfg.Media.ElevenLabsBaseURL, cfg.AI.Timeout)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: %w", err)
		}
		p.Speech = el
		p.Music = el
		p.Mixer = audio.NewFFmpegMixer(cfg.Media.FFmpegPath)
	} else {
		logger.Warn().Msg("elevenlabs key not set; narration disabled")
	}

	return p, nil
}

func buildAgent(cfg *config.Config, repos *pg.Repositories, p *providers, logger *zerolog.Logger) *usecase.Agent {
	acq := usecase.NewAcquirer(repos.Poems, p.Resolver, p.Researcher, p.Catalog, p.Registry, usecase.AcquireConfig{
		DefaultThemes:      cfg.Pipeline.DefaultThemes,
		DefaultSourceModel: cfg.Pipeline.DefaultSourceModel,
		ExtractionModel:    cfg.Pipeline.DefaultSourceModel,
	}, logger)

	policy := usecase.VerifyPolicy{
		Enabled:       cfg.Pipeline.Verify.Enabled,
		FailOpen:      cfg.Pipeline.Verify.FailOpen,
		ExemptCatalog: cfg.Pipeline.Verify.ExemptCatalog,
	}
	observer := metrics.PipelineObserver{}

	phases := usecase.Phases{
		Acquire:    acq,
		Verify:     usecase.NewVerifier(repos.Poems, p.Resolver, p.Researcher, acq, policy, cfg.Pipeline.ComparisonModel, logger),
		Illustrate: usecase.NewIllustrate(repos.Media, p.Illustrators, logger),
		Narrate:    usecase.NewNarrate(repos.Media, p.Speech, p.Music, p.Mixer, logger),
		Analyze:    usecase.NewAnalyze(repos.Commentaries, p.Resolver, observer, logger),
		Gloss:      usecase.NewGloss(repos.Poems, p.Resolver, cfg.Pipeline.GlossModels, logger),
		Compare:    usecase.NewCompare(repos.Commentaries, repos.Syntheses, p.Resolver, cfg.Pipeline.ComparisonModel, logger),
		Publish:    usecase.NewPublish(repos.Publications, logger),
	}
	l := logger.With().Str("component", "agent").Logger()
	return usecase.NewAgent(repos.Jobs, repos.Logs, phases, observer, &l)
}
