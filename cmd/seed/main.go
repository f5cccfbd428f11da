package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"poetry-pipeline/internal/config"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
	"poetry-pipeline/internal/domain/structured"
	"poetry-pipeline/internal/infra/adapters/ai"
	"poetry-pipeline/internal/infra/adapters/catalog"
	pg "poetry-pipeline/internal/infra/db/postgres"
	"poetry-pipeline/internal/infra/logging"
)

var discoverSchema = structured.MustCompileSchema("discovered_poems", `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["title", "author"],
    "properties": {
      "title":        {"type": "string", "minLength": 1},
      "title_he":     {"type": "string"},
      "author":       {"type": "string", "minLength": 1},
      "author_he":    {"type": "string"},
      "themes":       {"type": "array", "items": {"type": "string"}},
      "search_query": {"type": "string"}
    }
  }
}`)

type discovered struct {
	Title       string   `json:"title"`
	TitleHe     string   `json:"title_he"`
	Author      string   `json:"author"`
	AuthorHe    string   `json:"author_he"`
	Themes      []string `json:"themes"`
	SearchQuery string   `json:"search_query"`
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	poet := flag.String("discover", "", "ask the default model for well-known poems by this poet and add them")
	lang := flag.String("lang", "EN", "language of discovered poems (EN or HE)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pg.ConnectPostgres(ctx, cfg.Database.URL, logger)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	repos := pg.NewRepositories(pool)

	var entries []*model.RegistryEntry
	if *poet == "" {
		entries, err = catalog.StaticRegistry()
		if err != nil {
			log.Fatalf("load registry: %v", err)
		}
	} else {
		gen, err := primaryGenerator(ctx, cfg)
		if err != nil {
			log.Fatalf("generator: %v", err)
		}
		entries, err = discover(ctx, gen, *poet, model.Language(strings.ToUpper(*lang)), logger)
		if err != nil {
			log.Fatalf("discover: %v", err)
		}
	}

	added := 0
	err = repos.Tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, e := range entries {
			ok, err := repos.Registry.Upsert(ctx, tx, e)
			if err != nil {
				return fmt.Errorf("upsert %q: %w", e.Title, err)
			}
			if ok {
				added++
				fmt.Printf("  + %s by %s (%s)\n", e.Title, e.Author, e.Language)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed registry: %v", err)
	}
	fmt.Printf("%d of %d registry entries added.\n", added, len(entries))
}

// primaryGenerator builds the generator for the default source model without
// wiring the whole provider set.
func primaryGenerator(ctx context.Context, cfg *config.Config) (adapter.TextGenerator, error) {
	var gens []adapter.TextGenerator
	if cfg.AI.AnthropicKey != "" {
		c, err := ai.NewClaudeAdapter(cfg.AI.AnthropicKey, cfg.AI.ClaudeModel, "", cfg.AI.Timeout)
		if err != nil {
			return nil, err
		}
		gens = append(gens, c)
	}
	if cfg.AI.OpenAIKey != "" {
		client, err := ai.NewOpenAIClient(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.Timeout)
		if err != nil {
			return nil, err
		}
		gens = append(gens, ai.NewOpenAIAdapter(client, cfg.AI.GPTModel))
	}
	if cfg.AI.GeminiKey != "" {
		g, err := ai.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.GeminiModel, cfg.AI.Timeout)
		if err != nil {
			return nil, err
		}
		gens = append(gens, g)
	}
	if len(gens) == 0 {
		return nil, fmt.Errorf("no AI provider key configured")
	}
	if g, err := ai.NewResolver(gens, nil).Resolve(cfg.Pipeline.DefaultSourceModel); err == nil {
		return g, nil
	}
	return gens[0], nil
}

func discover(ctx context.Context, gen adapter.TextGenerator, poet string, lang model.Language, logger *zerolog.Logger) ([]*model.RegistryEntry, error) {
	prompt := fmt.Sprintf(`List 12 to 15 of the most celebrated and widely anthologised poems by %s.
Only include poems you are certain exist, with their exact published titles.
Answer with a JSON array only. Each item has "title", "author", "themes" (2-4 lowercase words)
and "search_query" (a web search that would find the full text).`, poet)
	if lang == model.LanguageHE {
		prompt += ` Also include "title_he" and "author_he" with the original Hebrew.`
	}

	res, err := gen.Generate(ctx, prompt, adapter.GenerateOptions{Temperature: 0.2, MaxTokens: 4000, JSON: true})
	if err != nil {
		return nil, err
	}
	items, ok := structured.Decode[[]discovered](res.Text, discoverSchema)
	if !ok {
		logger.Debug().Str("response", logging.Preview(res.Text, 300)).Msg("unparsable discovery response")
		return nil, fmt.Errorf("model %s returned no usable poem list", gen.Model())
	}
	logger.Info().Str("poet", poet).Int("poems", len(items)).Str("model", gen.Model()).Msg("discovered poems")

	out := make([]*model.RegistryEntry, 0, len(items))
	for _, it := range items {
		q := it.SearchQuery
		if q == "" {
			q = fmt.Sprintf("%q %s full text", it.Title, it.Author)
		}
		out = append(out, &model.RegistryEntry{
			Title:       strings.TrimSpace(it.Title),
			TitleHe:     it.TitleHe,
			Author:      strings.TrimSpace(it.Author),
			AuthorHe:    it.AuthorHe,
			Language:    lang,
			Themes:      it.Themes,
			SearchQuery: q,
		})
	}
	return out, nil
}
