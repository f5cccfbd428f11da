package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
)

type acquireFixture struct {
	poems    *memPoemRepo
	claude   *scriptedGen
	research *fakeResearcher
	catalog  *fakeCatalog
	registry *fakeRegistry
	acq      *Acquirer
}

func newAcquireFixture() *acquireFixture {
	f := &acquireFixture{
		poems:    newMemPoemRepo(),
		claude:   newGen(model.ProviderClaude),
		research: &fakeResearcher{},
		catalog: &fakeCatalog{poem: &adapter.CatalogPoem{
			Title:  "Ozymandias",
			Author: "Percy Bysshe Shelley",
			Lines:  []string{"I met a traveller from an antique land,", "Who said-Two vast and trunkless legs of stone"},
			Themes: []string{"time", "power"},
		}},
		registry: &fakeRegistry{},
	}
	gens := &fakeResolver{gens: []*scriptedGen{f.claude}}
	f.acq = NewAcquirer(f.poems, gens, f.research, f.catalog, f.registry, AcquireConfig{DefaultSourceModel: "CLAUDE"}, &nopLog)
	return f
}

func TestAcquire_CatalogFirst(t *testing.T) {
	f := newAcquireFixture()
	res, err := f.acq.Acquire(context.Background(), model.JobParams{Language: model.LanguageEN, Topic: "time"}, "")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if res.Strategy != StrategyCatalog || res.Poem.Title != "Ozymandias" {
		t.Fatalf("expected catalog poem, got %s via %s", res.Poem.Title, res.Strategy)
	}
	if f.research.calls != 0 {
		t.Error("research must not run after a catalog hit")
	}
	if res.Poem.DedupKey == "" || res.Poem.Fingerprint == "" {
		t.Error("stored poem needs dedup key and fingerprint")
	}
}

func TestAcquire_DuplicateFallsThrough(t *testing.T) {
	f := newAcquireFixture()
	if _, err := f.acq.Acquire(context.Background(), model.JobParams{Language: model.LanguageEN}, ""); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	res, err := f.acq.Acquire(context.Background(), model.JobParams{Language: model.LanguageEN}, "")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if res.Strategy != StrategyResearch {
		t.Fatalf("catalog duplicate should fall through to research, got %s", res.Strategy)
	}
	if res.Poem.Title != "Quiet Hours" || res.Poem.Author != "Unknown" {
		t.Errorf("unexpected extracted poem %q by %q", res.Poem.Title, res.Poem.Author)
	}
	if res.Cost <= 0 {
		t.Error("research and extraction cost should be counted")
	}
}

func TestAcquire_HebrewUsesRegistry(t *testing.T) {
	f := newAcquireFixture()
	f.registry.entry = &model.RegistryEntry{
		Title: "To My Land", TitleHe: "אל ארצי",
		Author: "Rachel Bluwstein", AuthorHe: "רחל",
		Language: model.LanguageHE,
		Themes:   []string{"homeland"},
	}
	res, err := f.acq.Acquire(context.Background(), model.JobParams{Language: model.LanguageHE}, "")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if f.catalog.calls != 0 {
		t.Error("catalog only serves English poems")
	}
	if res.Strategy != StrategyRegistry {
		t.Fatalf("expected registry, got %s", res.Strategy)
	}
	p := res.Poem
	if p.TitleHe != "אל ארצי" || p.ContentHe == "" || p.SourceURL != "https://example.org/poem" {
		t.Errorf("registry fields not kept: %+v", p)
	}
}

func TestAcquire_ResearchFailureFallsToGeneration(t *testing.T) {
	f := newAcquireFixture()
	f.catalog.poem = nil
	f.research.err = errBoom

	res, err := f.acq.Acquire(context.Background(), model.JobParams{Language: model.LanguageEN}, "")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if res.Strategy != StrategyGenerate || res.Poem.Provenance != model.ProvenanceGenerated {
		t.Errorf("expected generated poem, got %s", res.Strategy)
	}
}

func TestAcquire_ExistingPoem(t *testing.T) {
	f := newAcquireFixture()
	poem := model.NewPoem("Kept", "Someone", "text", model.LanguageEN, model.ProvenanceFound, nil)
	_ = f.poems.Create(context.Background(), repository.NoTX, poem)

	res, err := f.acq.Acquire(context.Background(), model.JobParams{}, poem.ID)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if res.Strategy != StrategyExisting || res.Poem.ID != poem.ID {
		t.Errorf("expected existing poem, got %s", res.Strategy)
	}
}

func TestAcquire_GeneratedTitleClashRegenerates(t *testing.T) {
	f := newAcquireFixture()
	f.claude.script("generate",
		`{"title":"Solitude","content":"first take\non being alone"}`,
		`{"title":"Solitude","content":"a second poem\nwith other lines"}`,
		`{"title":"Alone Again","content":"a second poem\nwith other lines"}`,
	)
	params := model.JobParams{AcquisitionMode: model.AcquisitionGenerated, Language: model.LanguageEN}
	if _, err := f.acq.Acquire(context.Background(), params, ""); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := f.acq.Acquire(context.Background(), params, "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Poem.Title != "Alone Again" || f.poems.count() != 2 {
		t.Errorf("expected the regenerated poem, got %q with %d stored", res.Poem.Title, f.poems.count())
	}
	prompts := f.claude.promptsFor("generate")
	if len(prompts) != 3 || !strings.Contains(prompts[2], `"Solitude"`) || strings.Contains(prompts[1], "already taken") {
		t.Errorf("only the retry should name the taken title, prompts: %q", prompts)
	}
}

func TestAcquire_GeneratedDuplicateFailsAfterRetry(t *testing.T) {
	f := newAcquireFixture()
	params := model.JobParams{AcquisitionMode: model.AcquisitionGenerated, Language: model.LanguageEN}
	if _, err := f.acq.Acquire(context.Background(), params, ""); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := f.acq.Acquire(context.Background(), params, "")
	if !errors.Is(err, domain.ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}
	if n := f.claude.callCount("generate"); n != 3 {
		t.Errorf("expected one regeneration, got %d generate calls", n)
	}
	if f.poems.count() != 1 {
		t.Errorf("duplicate must not be stored, have %d poems", f.poems.count())
	}
}

func TestAcquire_HebrewGeneration(t *testing.T) {
	f := newAcquireFixture()
	f.claude.script("generate", `{"title":"Night","titleHe":"לילה","content":"שורה ראשונה\nשורה שנייה"}`)
	poem, _, err := f.acq.Generate(context.Background(), []string{"night"}, model.LanguageHE, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if poem.ContentHe != poem.Content || poem.TitleHe != "לילה" {
		t.Errorf("Hebrew fields not set: %+v", poem)
	}
	if len(poem.Themes) != 1 || poem.Themes[0] != "night" {
		t.Errorf("requested themes should be kept when the model returns none, got %v", poem.Themes)
	}
}
