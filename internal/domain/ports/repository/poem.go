package repository

import (
	"context"

	"poetry-pipeline/internal/domain/model"
)

type PoemRepository interface {
	Create(ctx context.Context, tx Tx, poem *model.Poem) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Poem, error)
	Update(ctx context.Context, tx Tx, id string, patch model.PoemPatch) error
	Delete(ctx context.Context, tx Tx, id string) error
	// FindSimilar returns poems whose dedup key or content fingerprint is in the given sets.
	FindSimilar(ctx context.Context, tx Tx, keys, fingerprints []string) ([]*model.Poem, error)
	// ListDedupKeys returns title::author keys of the most recent poems.
	ListDedupKeys(ctx context.Context, tx Tx, limit int) ([]string, error)
}

type CommentaryRepository interface {
	Create(ctx context.Context, tx Tx, c *model.Commentary) error
	ListCompleted(ctx context.Context, tx Tx, poemID string) ([]*model.Commentary, error)
}

type SynthesisRepository interface {
	// Upsert keeps one synthesis per poem.
	Upsert(ctx context.Context, tx Tx, s *model.Synthesis) error
	FindByPoemID(ctx context.Context, tx Tx, poemID string) (*model.Synthesis, error)
}

type PublicationRepository interface {
	Create(ctx context.Context, tx Tx, p *model.Publication) error
	FindByPoemID(ctx context.Context, tx Tx, poemID string) (*model.Publication, error)
}

type MediaRepository interface {
	SaveIllustration(ctx context.Context, tx Tx, ill *model.Illustration) error
	HasIllustration(ctx context.Context, tx Tx, poemID string) (bool, error)
	SaveNarration(ctx context.Context, tx Tx, n *model.Narration) error
	HasNarration(ctx context.Context, tx Tx, poemID string) (bool, error)
}

type RegistryRepository interface {
	ListUnacquired(ctx context.Context, tx Tx, lang model.Language) ([]*model.RegistryEntry, error)
	MarkAcquired(ctx context.Context, tx Tx, id string) error
	// Upsert inserts an entry unless its title and author already exist.
	Upsert(ctx context.Context, tx Tx, e *model.RegistryEntry) (bool, error)
}
