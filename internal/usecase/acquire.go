package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/dedup"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
	"poetry-pipeline/internal/domain/structured"
)

// Strategy names, also recorded in the action log.
const (
	StrategyExisting = "existing"
	StrategyCatalog  = "catalog"
	StrategyRegistry = "registry"
	StrategyResearch = "research"
	StrategyGenerate = "generate"
)

type AcquireConfig struct {
	DefaultThemes      []string
	DefaultSourceModel string
	// ExtractionModel turns research results into a poem.
	ExtractionModel string
}

type AcquireResult struct {
	Poem     *model.Poem
	Strategy string
	Cost     float64
}

// strategyResult is the tagged outcome of one strategy. Found=false means
// "try the next one"; an error from any strategy but the last is logged
// and treated the same way.
type strategyResult struct {
	Poem  *model.Poem
	Cost  float64
	Found bool
}

type acquireStrategy struct {
	name string
	run  func(ctx context.Context, in acquireInput) (strategyResult, error)
}

type acquireInput struct {
	params model.JobParams
	poemID string
	themes []string
}

type extractedPoem struct {
	Title   string   `json:"title"`
	TitleHe string   `json:"titleHe"`
	Author  string   `json:"author"`
	Content string   `json:"content"`
	Themes  []string `json:"themes"`
}

// Acquirer produces the poem a job works on. Optional sources (catalog,
// registry, researcher) may be nil.
type Acquirer struct {
	poems    repository.PoemRepository
	gens     adapter.GeneratorResolver
	research adapter.Researcher
	catalog  adapter.PoemCatalog
	registry adapter.PoemRegistry
	cfg      AcquireConfig
	log      *zerolog.Logger
}

func NewAcquirer(
	poems repository.PoemRepository,
	gens adapter.GeneratorResolver,
	research adapter.Researcher,
	catalog adapter.PoemCatalog,
	registry adapter.PoemRegistry,
	cfg AcquireConfig,
	logger *zerolog.Logger,
) *Acquirer {
	if len(cfg.DefaultThemes) == 0 {
		cfg.DefaultThemes = []string{"reflection", "beauty"}
	}
	return &Acquirer{
		poems:    poems,
		gens:     gens,
		research: research,
		catalog:  catalog,
		registry: registry,
		cfg:      cfg,
		log:      logger,
	}
}

func (a *Acquirer) strategies(mode model.AcquisitionMode) []acquireStrategy {
	existing := acquireStrategy{StrategyExisting, a.fromExisting}
	generate := acquireStrategy{StrategyGenerate, a.fromGeneration}
	if mode == model.AcquisitionGenerated {
		return []acquireStrategy{existing, generate}
	}
	return []acquireStrategy{
		existing,
		{StrategyCatalog, a.fromCatalog},
		{StrategyRegistry, a.fromRegistry},
		{StrategyResearch, a.fromResearch},
		generate,
	}
}

// Acquire walks the strategy list and stops at the first poem found.
// Failure of the final strategy is fatal and wraps domain.ErrNoArtifact.
func (a *Acquirer) Acquire(ctx context.Context, params model.JobParams, poemID string) (*AcquireResult, error) {
	in := acquireInput{params: params, poemID: poemID, themes: params.Themes(a.cfg.DefaultThemes)}
	strategies := a.strategies(params.AcquisitionMode)

	var cost float64
	for i, s := range strategies {
		last := i == len(strategies)-1
		res, err := s.run(ctx, in)
		cost += res.Cost
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if last {
				return nil, fmt.Errorf("%s: %v: %w", s.name, err, domain.ErrNoArtifact)
			}
			a.log.Warn().Err(err).Str("strategy", s.name).Msg("acquire strategy failed, falling through")
			continue
		}
		if res.Found {
			a.log.Info().Str("strategy", s.name).Str("poem_id", res.Poem.ID).Str("title", res.Poem.Title).Msg("poem acquired")
			return &AcquireResult{Poem: res.Poem, Strategy: s.name, Cost: cost}, nil
		}
	}
	return nil, domain.ErrNoArtifact
}

func (a *Acquirer) fromExisting(ctx context.Context, in acquireInput) (strategyResult, error) {
	if in.poemID == "" {
		return strategyResult{}, nil
	}
	p, err := a.poems.FindByID(ctx, repository.NoTX, in.poemID)
	if errors.Is(err, domain.ErrNotFound) {
		return strategyResult{}, nil
	}
	if err != nil {
		return strategyResult{}, err
	}
	return strategyResult{Poem: p, Found: true}, nil
}

func (a *Acquirer) fromCatalog(ctx context.Context, in acquireInput) (strategyResult, error) {
	if a.catalog == nil || in.params.Language != model.LanguageEN {
		return strategyResult{}, nil
	}
	exclude := func(title, author string) bool {
		dup, err := a.isDuplicate(ctx, title, author, "")
		return err != nil || dup
	}
	cp, err := a.catalog.Find(ctx, in.themes, exclude)
	if errors.Is(err, domain.ErrNotFound) {
		return strategyResult{}, nil
	}
	if err != nil {
		return strategyResult{}, err
	}
	poem := model.NewPoem(cp.Title, cp.Author, strings.Join(cp.Lines, "\n"), model.LanguageEN, model.ProvenanceFound, cp.Themes)
	return a.persistFound(ctx, poem, 0)
}

func (a *Acquirer) fromRegistry(ctx context.Context, in acquireInput) (strategyResult, error) {
	if a.registry == nil || a.research == nil {
		return strategyResult{}, nil
	}
	entry, err := a.registry.Pick(ctx, in.params.Language)
	if errors.Is(err, domain.ErrNotFound) {
		return strategyResult{}, nil
	}
	if err != nil {
		return strategyResult{}, err
	}

	title, author := entry.Title, entry.Author
	if in.params.Language == model.LanguageHE {
		title, author = firstNonEmpty(entry.TitleHe, title), firstNonEmpty(entry.AuthorHe, author)
	}
	query := entry.SearchQuery
	if query == "" {
		query = verificationQuery(title, author, in.params.Language)
	}
	res, err := a.research.Research(ctx, query, adapter.ResearchOptions{
		MaxResults: 5,
		Context:    "Finding the complete original text of a specific poem",
	})
	if err != nil {
		return strategyResult{}, fmt.Errorf("research %q: %w", entry.Title, err)
	}
	got, cost, gen, err := a.extract(ctx, res, fmt.Sprintf("the complete text of %q by %s", title, author))
	cost += res.CostUSD
	if err != nil {
		return strategyResult{Cost: cost}, err
	}

	themes := entry.Themes
	if len(themes) == 0 {
		themes = in.themes
	}
	poem := model.NewPoem(entry.Title, entry.Author, got.Content, entry.Language, model.ProvenanceFound, themes)
	poem.TitleHe = entry.TitleHe
	poem.AuthorHe = entry.AuthorHe
	if entry.Language == model.LanguageHE {
		poem.ContentHe = got.Content
	}
	poem.SourceModel = string(gen.Provider())
	if len(res.Sources) > 0 {
		poem.SourceURL = res.Sources[0].URL
	}
	return a.persistFound(ctx, poem, cost)
}

func (a *Acquirer) fromResearch(ctx context.Context, in acquireInput) (strategyResult, error) {
	if a.research == nil {
		return strategyResult{}, nil
	}
	query := fmt.Sprintf("classic English poem about %s full text", strings.Join(in.themes, " or "))
	if in.params.Language == model.LanguageHE {
		query = fmt.Sprintf("famous Hebrew poem about %s", strings.Join(in.themes, " or "))
	}
	res, err := a.research.Research(ctx, query, adapter.ResearchOptions{
		MaxResults: 5,
		Context:    "Finding a poem for literary analysis",
	})
	if err != nil {
		return strategyResult{}, err
	}
	got, cost, gen, err := a.extract(ctx, res, "one complete poem")
	cost += res.CostUSD
	if err != nil {
		return strategyResult{Cost: cost}, err
	}

	themes := got.Themes
	if len(themes) == 0 {
		themes = in.themes
	}
	author := firstNonEmpty(got.Author, "Unknown")
	poem := model.NewPoem(got.Title, author, got.Content, in.params.Language, model.ProvenanceFound, themes)
	poem.TitleHe = got.TitleHe
	poem.SourceModel = string(gen.Provider())
	return a.persistFound(ctx, poem, cost)
}

func (a *Acquirer) fromGeneration(ctx context.Context, in acquireInput) (strategyResult, error) {
	poem, cost, err := a.Generate(ctx, in.themes, in.params.Language, in.params.SourceModel)
	if err != nil {
		return strategyResult{Cost: cost}, err
	}
	return strategyResult{Poem: poem, Cost: cost, Found: true}, nil
}

// Generate writes and persists an original poem. A title or content clash
// with a stored poem gets one more attempt that names the titles to avoid;
// a second clash is an error since no later strategy remains.
func (a *Acquirer) Generate(ctx context.Context, themes []string, lang model.Language, sourceModel string) (*model.Poem, float64, error) {
	if sourceModel == "" {
		sourceModel = a.cfg.DefaultSourceModel
	}
	gen, err := a.gens.Resolve(sourceModel)
	if err != nil {
		return nil, 0, err
	}

	var (
		cost  float64
		avoid []string
	)
	for attempt := 1; ; attempt++ {
		poem, c, err := a.generateOnce(ctx, gen, themes, lang, avoid)
		cost += c
		if err == nil {
			return poem, cost, nil
		}
		if attempt > 1 || !errors.Is(err, domain.ErrDuplicateContent) {
			return nil, cost, err
		}
		a.log.Info().Str("title", poem.Title).Msg("generated poem clashes with a stored one, regenerating")
		avoid = append(avoid, poem.Title)
	}
}

// generateOnce returns the rejected poem alongside ErrDuplicateContent so
// the caller can steer the next attempt away from its title.
func (a *Acquirer) generateOnce(ctx context.Context, gen adapter.TextGenerator, themes []string, lang model.Language, avoid []string) (*model.Poem, float64, error) {
	out, err := gen.Generate(ctx, generationPrompt(themes, lang, avoid), adapter.GenerateOptions{
		Temperature: 0.9,
		MaxTokens:   2000,
		JSON:        true,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("generate poem with %s: %w", gen.Model(), err)
	}
	got, ok := structured.Decode[extractedPoem](out.Text, poemSchema)
	if !ok {
		return nil, out.CostUSD, fmt.Errorf("generated poem: %w", domain.ErrExtraction)
	}

	if len(got.Themes) > 0 {
		themes = got.Themes
	}
	author := fmt.Sprintf("AI (%s)", gen.Provider())
	poem := model.NewPoem(got.Title, author, got.Content, lang, model.ProvenanceGenerated, themes)
	poem.TitleHe = got.TitleHe
	poem.SourceModel = string(gen.Provider())
	if lang == model.LanguageHE {
		poem.ContentHe = got.Content
		poem.TitleHe = firstNonEmpty(got.TitleHe, got.Title)
	}
	if err := a.persist(ctx, poem); err != nil {
		if errors.Is(err, domain.ErrDuplicateContent) {
			return poem, out.CostUSD, err
		}
		return nil, out.CostUSD, err
	}
	return poem, out.CostUSD, nil
}

// extract asks the extraction model to pull one poem out of research results.
func (a *Acquirer) extract(ctx context.Context, res adapter.ResearchResult, wanted string) (extractedPoem, float64, adapter.TextGenerator, error) {
	gen, err := a.gens.Resolve(firstNonEmpty(a.cfg.ExtractionModel, a.cfg.DefaultSourceModel))
	if err != nil {
		return extractedPoem{}, 0, nil, err
	}
	out, err := gen.Generate(ctx, extractionPrompt(res, wanted), adapter.GenerateOptions{Temperature: 0.3, JSON: true})
	if err != nil {
		return extractedPoem{}, 0, gen, fmt.Errorf("extract poem: %w", err)
	}
	got, ok := structured.Decode[extractedPoem](out.Text, poemSchema)
	if !ok {
		return extractedPoem{}, out.CostUSD, gen, fmt.Errorf("research extraction: %w", domain.ErrExtraction)
	}
	return got, out.CostUSD, gen, nil
}

// persistFound stores a found candidate; a duplicate means "not found" so the
// next strategy runs.
func (a *Acquirer) persistFound(ctx context.Context, poem *model.Poem, cost float64) (strategyResult, error) {
	err := a.persist(ctx, poem)
	if errors.Is(err, domain.ErrDuplicateContent) {
		a.log.Info().Str("title", poem.Title).Str("author", poem.Author).Msg("duplicate candidate skipped")
		return strategyResult{Cost: cost}, nil
	}
	if err != nil {
		return strategyResult{Cost: cost}, err
	}
	return strategyResult{Poem: poem, Cost: cost, Found: true}, nil
}

func (a *Acquirer) persist(ctx context.Context, poem *model.Poem) error {
	poem.DedupKey = dedup.Key(poem.Title, poem.Author)
	poem.Fingerprint = dedup.ContentFingerprint(poem.Content)
	dup, err := a.isDuplicate(ctx, poem.Title, poem.Author, poem.Content)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%q by %s: %w", poem.Title, poem.Author, domain.ErrDuplicateContent)
	}
	return a.poems.Create(ctx, repository.NoTX, poem)
}

// isDuplicate matches on title::author or, when content is given, on the
// content fingerprint.
func (a *Acquirer) isDuplicate(ctx context.Context, title, author, content string) (bool, error) {
	keys := []string{dedup.Key(title, author)}
	var fps []string
	if content != "" {
		if fp := dedup.ContentFingerprint(content); fp != "" {
			fps = append(fps, fp)
		}
	}
	similar, err := a.poems.FindSimilar(ctx, repository.NoTX, keys, fps)
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return len(similar) > 0, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
