package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/dedup"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
)

//go:embed registry.yaml
var registryYAML []byte

// existingScan bounds how many stored poems are checked against candidates.
const existingScan = 500

// StaticRegistry parses the embedded curated list.
func StaticRegistry() ([]*model.RegistryEntry, error) {
	return parseRegistry(registryYAML)
}

func parseRegistry(b []byte) ([]*model.RegistryEntry, error) {
	var entries []*model.RegistryEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	for i, e := range entries {
		if e.Title == "" || e.Author == "" {
			return nil, fmt.Errorf("registry entry %d: title and author are required", i)
		}
		if e.Language != model.LanguageEN && e.Language != model.LanguageHE {
			return nil, fmt.Errorf("registry entry %q: bad language %q", e.Title, e.Language)
		}
	}
	return entries, nil
}

// SearchQuery builds an exact-title web query for a registry entry.
func SearchQuery(e *model.RegistryEntry) string {
	if e.SearchQuery != "" {
		return e.SearchQuery
	}
	if e.Language == model.LanguageHE {
		title, author := e.TitleHe, e.AuthorHe
		if title == "" {
			title = e.Title
		}
		if author == "" {
			author = e.Author
		}
		return fmt.Sprintf("%q %q שיר טקסט מלא", title, author)
	}
	return fmt.Sprintf("%q %q poem full text", e.Title, e.Author)
}

var _ adapter.PoemRegistry = (*Registry)(nil)

// Registry merges the embedded list with poem_registry rows.
type Registry struct {
	static []*model.RegistryEntry
	repo   repository.RegistryRepository
	poems  repository.PoemRepository
	log    *zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRegistry(static []*model.RegistryEntry, repo repository.RegistryRepository, poems repository.PoemRepository, logger *zerolog.Logger) *Registry {
	return &Registry{
		static: static,
		repo:   repo,
		poems:  poems,
		log:    logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pick selects a random entry whose title::author key is not yet stored.
// Entries backed by a row are marked acquired.
func (r *Registry) Pick(ctx context.Context, lang model.Language) (*model.RegistryEntry, error) {
	rows, err := r.repo.ListUnacquired(ctx, repository.NoTX, lang)
	if err != nil {
		return nil, fmt.Errorf("list registry: %w", err)
	}

	// rows shadow static entries with the same key so they can be marked
	candidates := make(map[string]*model.RegistryEntry)
	var order []string
	add := func(e *model.RegistryEntry) {
		k := dedup.Key(e.Title, e.Author)
		if _, seen := candidates[k]; !seen {
			order = append(order, k)
		}
		candidates[k] = e
	}
	for _, e := range r.static {
		if e.Language == lang {
			add(e)
		}
	}
	for _, e := range rows {
		add(e)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("registry empty for %s: %w", lang, domain.ErrNotFound)
	}

	keys, err := r.poems.ListDedupKeys(ctx, repository.NoTX, existingScan)
	if err != nil {
		return nil, fmt.Errorf("list existing poems: %w", err)
	}
	existing := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		existing[k] = struct{}{}
	}

	var available []*model.RegistryEntry
	for _, k := range order {
		if _, taken := existing[k]; !taken {
			available = append(available, candidates[k])
		}
	}
	if len(available) == 0 {
		r.log.Info().Str("language", string(lang)).Int("total", len(order)).Msg("registry exhausted")
		return nil, fmt.Errorf("registry exhausted for %s: %w", lang, domain.ErrNotFound)
	}

	r.mu.Lock()
	pick := available[r.rnd.Intn(len(available))]
	r.mu.Unlock()

	if pick.ID != "" {
		if err := r.repo.MarkAcquired(ctx, repository.NoTX, pick.ID); err != nil {
			return nil, fmt.Errorf("mark acquired: %w", err)
		}
		pick.Acquired = true
	}
	r.log.Info().Str("title", pick.Title).Str("author", pick.Author).Int("available", len(available)).Msg("registry pick")
	return pick, nil
}
