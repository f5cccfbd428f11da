package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/repository"
)

var _ repository.RegistryRepository = (*registryRepo)(nil)

type registryRepo struct {
	pool *pgxpool.Pool
}

func NewRegistryRepo(pool *pgxpool.Pool) *registryRepo {
	return &registryRepo{pool: pool}
}

func (r *registryRepo) ListUnacquired(ctx context.Context, tx repository.Tx, lang model.Language) ([]*model.RegistryEntry, error) {
	const q = `
SELECT id, title, title_he, author, author_he, language, themes, search_query, acquired
  FROM poem_registry
 WHERE language = $1 AND NOT acquired
 ORDER BY created_at;`
	rows, err := queryRows(ctx, r.pool, tx, q, lang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.RegistryEntry
	for rows.Next() {
		var (
			e    model.RegistryEntry
			lang string
		)
		if err := rows.Scan(&e.ID, &e.Title, &e.TitleHe, &e.Author, &e.AuthorHe, &lang, &e.Themes, &e.SearchQuery, &e.Acquired); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		e.Language = model.Language(lang)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *registryRepo) MarkAcquired(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE poem_registry SET acquired = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Upsert reports whether a new row was inserted.
func (r *registryRepo) Upsert(ctx context.Context, tx repository.Tx, e *model.RegistryEntry) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	themes := e.Themes
	if themes == nil {
		themes = []string{}
	}
	const q = `
INSERT INTO poem_registry (id, title, title_he, author, author_he, language, themes, search_query)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (title, author) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, e.ID, e.Title, e.TitleHe, e.Author, e.AuthorHe, e.Language, themes, e.SearchQuery)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
