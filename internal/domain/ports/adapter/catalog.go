package adapter

import (
	"context"

	"poetry-pipeline/internal/domain/model"
)

type CatalogPoem struct {
	Title  string
	Author string
	Lines  []string
	Themes []string
}

// PoemCatalog is a curated public-domain source. Find returns domain.ErrNotFound on a miss.
type PoemCatalog interface {
	Find(ctx context.Context, themes []string, exclude func(title, author string) bool) (*CatalogPoem, error)
}

// PoemRegistry hands out curated poems that have not been acquired yet.
// Pick returns domain.ErrNotFound when the language is exhausted.
type PoemRegistry interface {
	Pick(ctx context.Context, lang model.Language) (*model.RegistryEntry, error)
}
