package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v4/pgxpool"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/repository"
)

var _ repository.PoemRepository = (*poemRepo)(nil)

var poemColumns = []string{
	"id", "title", "title_he", "author", "author_he", "content", "content_he", "language", "themes",
	"provenance", "source_model", "source_url", "vocabulary", "line_explanations", "is_public_domain",
	"dedup_key", "fingerprint", "created_at", "updated_at",
}

type poemRepo struct {
	pool *pgxpool.Pool
}

func NewPoemRepo(pool *pgxpool.Pool) *poemRepo {
	return &poemRepo{pool: pool}
}

func (r *poemRepo) Create(ctx context.Context, tx repository.Tx, p *model.Poem) error {
	vocab, err := encodeGloss(p.Vocabulary)
	if err != nil {
		return err
	}
	lines, err := encodeGloss(p.LineExplanations)
	if err != nil {
		return err
	}
	themes := p.Themes
	if themes == nil {
		themes = []string{}
	}
	q, args, err := psql.Insert("poems").Columns(poemColumns...).Values(
		p.ID, p.Title, p.TitleHe, p.Author, p.AuthorHe, p.Content, p.ContentHe, p.Language, themes,
		p.Provenance, p.SourceModel, p.SourceURL, vocab, lines, p.IsPublicDomain,
		p.DedupKey, p.Fingerprint, p.CreatedAt, p.UpdatedAt,
	).ToSql()
	if err != nil {
		return err
	}
	if _, err := execSQL(ctx, r.pool, tx, q, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *poemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Poem, error) {
	q, args, err := psql.Select(poemColumns...).From("poems").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanPoem(row)
}

// Update writes only the fields set in patch.
func (r *poemRepo) Update(ctx context.Context, tx repository.Tx, id string, patch model.PoemPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	b := psql.Update("poems").Set("updated_at", time.Now()).Where(sq.Eq{"id": id})
	set := func(col string, v *string) {
		if v != nil {
			b = b.Set(col, *v)
		}
	}
	set("title", patch.Title)
	set("title_he", patch.TitleHe)
	set("author", patch.Author)
	set("author_he", patch.AuthorHe)
	set("content", patch.Content)
	set("content_he", patch.ContentHe)
	set("source_url", patch.SourceURL)
	set("dedup_key", patch.DedupKey)
	set("fingerprint", patch.Fingerprint)
	if patch.Provenance != nil {
		b = b.Set("provenance", *patch.Provenance)
	}
	if patch.Themes != nil {
		b = b.Set("themes", patch.Themes)
	}
	if patch.Vocabulary != nil {
		v, err := encodeGloss(patch.Vocabulary)
		if err != nil {
			return err
		}
		b = b.Set("vocabulary", v)
	}
	if patch.LineExplanations != nil {
		v, err := encodeGloss(patch.LineExplanations)
		if err != nil {
			return err
		}
		b = b.Set("line_explanations", v)
	}

	q, args, err := b.ToSql()
	if err != nil {
		return err
	}
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *poemRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM poems WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *poemRepo) FindSimilar(ctx context.Context, tx repository.Tx, keys, fingerprints []string) ([]*model.Poem, error) {
	var fps []string
	for _, fp := range fingerprints {
		if fp != "" {
			fps = append(fps, fp)
		}
	}
	cond := sq.Or{}
	if len(keys) > 0 {
		cond = append(cond, sq.Eq{"dedup_key": keys})
	}
	if len(fps) > 0 {
		cond = append(cond, sq.Eq{"fingerprint": fps})
	}
	if len(cond) == 0 {
		return nil, nil
	}

	q, args, err := psql.Select(poemColumns...).From("poems").Where(cond).OrderBy("created_at DESC").Limit(20).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Poem
	for rows.Next() {
		p, err := scanPoem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *poemRepo) ListDedupKeys(ctx context.Context, tx repository.Tx, limit int) ([]string, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT dedup_key FROM poems ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func scanPoem(row rowScanner) (*model.Poem, error) {
	var (
		p           model.Poem
		lang, prov  string
		vocab, expl []byte
	)
	err := row.Scan(&p.ID, &p.Title, &p.TitleHe, &p.Author, &p.AuthorHe, &p.Content, &p.ContentHe, &lang, &p.Themes,
		&prov, &p.SourceModel, &p.SourceURL, &vocab, &expl, &p.IsPublicDomain,
		&p.DedupKey, &p.Fingerprint, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	p.Language = model.Language(lang)
	p.Provenance = model.Provenance(prov)
	if p.Vocabulary, err = decodeGloss(vocab); err != nil {
		return nil, err
	}
	if p.LineExplanations, err = decodeGloss(expl); err != nil {
		return nil, err
	}
	return &p, nil
}

// encodeGloss stores an empty gloss as NULL so "missing" survives a round trip.
func encodeGloss(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode gloss: %w", err)
	}
	return b, nil
}

func decodeGloss(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return m, nil
}
