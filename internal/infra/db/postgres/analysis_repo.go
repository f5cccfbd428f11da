package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/repository"
)

var (
	_ repository.CommentaryRepository = (*commentaryRepo)(nil)
	_ repository.SynthesisRepository  = (*synthesisRepo)(nil)
)

type commentaryRepo struct {
	pool *pgxpool.Pool
}

func NewCommentaryRepo(pool *pgxpool.Pool) *commentaryRepo {
	return &commentaryRepo{pool: pool}
}

// Create fails with domain.ErrAlreadyExists when the provider already has a
// completed commentary for the poem.
func (r *commentaryRepo) Create(ctx context.Context, tx repository.Tx, c *model.Commentary) error {
	var raw []byte
	if len(c.Raw) > 0 {
		raw = c.Raw
	}
	const q = `
INSERT INTO commentaries (id, poem_id, provider, model, literary, thematic, emotional, cultural, hebrew,
                          raw, tokens_used, cost_usd, duration_ms, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);`
	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.PoemID, c.Provider, c.Model, c.Literary, c.Thematic, c.Emotional, c.Cultural, c.Hebrew,
		raw, c.TokensUsed, c.CostUSD, c.Duration.Milliseconds(), c.Status, c.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *commentaryRepo) ListCompleted(ctx context.Context, tx repository.Tx, poemID string) ([]*model.Commentary, error) {
	const q = `
SELECT id, poem_id, provider, model, literary, thematic, emotional, cultural, hebrew,
       raw, tokens_used, cost_usd, duration_ms, status, created_at
  FROM commentaries
 WHERE poem_id = $1 AND status = 'COMPLETED'
 ORDER BY created_at;`
	rows, err := queryRows(ctx, r.pool, tx, q, poemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Commentary
	for rows.Next() {
		var (
			c                model.Commentary
			provider, status string
			raw              []byte
			durMS            int64
		)
		if err := rows.Scan(&c.ID, &c.PoemID, &provider, &c.Model, &c.Literary, &c.Thematic, &c.Emotional, &c.Cultural, &c.Hebrew,
			&raw, &c.TokensUsed, &c.CostUSD, &durMS, &status, &c.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		c.Provider = model.Provider(provider)
		c.Status = model.CommentaryStatus(status)
		c.Raw = raw
		c.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, &c)
	}
	return out, rows.Err()
}

type synthesisRepo struct {
	pool *pgxpool.Pool
}

func NewSynthesisRepo(pool *pgxpool.Pool) *synthesisRepo {
	return &synthesisRepo{pool: pool}
}

// Upsert replaces the poem's synthesis; the original id is kept.
func (r *synthesisRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Synthesis) error {
	agree, err := json.Marshal(s.Agreements)
	if err != nil {
		return fmt.Errorf("encode agreements: %w", err)
	}
	disagree, err := json.Marshal(s.Disagreements)
	if err != nil {
		return fmt.Errorf("encode disagreements: %w", err)
	}
	insights, err := json.Marshal(s.Insights)
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}
	const q = `
INSERT INTO syntheses (id, poem_id, content, agreements, disagreements, insights, provider, tokens_used, cost_usd, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (poem_id) DO UPDATE SET
  content = EXCLUDED.content,
  agreements = EXCLUDED.agreements,
  disagreements = EXCLUDED.disagreements,
  insights = EXCLUDED.insights,
  provider = EXCLUDED.provider,
  tokens_used = EXCLUDED.tokens_used,
  cost_usd = EXCLUDED.cost_usd
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q,
		s.ID, s.PoemID, s.Content, agree, disagree, insights, s.Provider, s.TokensUsed, s.CostUSD, s.CreatedAt)
	if err != nil {
		return err
	}
	return row.Scan(&s.ID)
}

func (r *synthesisRepo) FindByPoemID(ctx context.Context, tx repository.Tx, poemID string) (*model.Synthesis, error) {
	const q = `
SELECT id, poem_id, content, agreements, disagreements, insights, provider, tokens_used, cost_usd, created_at
  FROM syntheses WHERE poem_id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, poemID)
	if err != nil {
		return nil, err
	}
	var (
		s                         model.Synthesis
		provider                  string
		agree, disagree, insights []byte
	)
	if err := row.Scan(&s.ID, &s.PoemID, &s.Content, &agree, &disagree, &insights, &provider, &s.TokensUsed, &s.CostUSD, &s.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	s.Provider = model.Provider(provider)
	for _, f := range []struct {
		b   []byte
		dst any
	}{{agree, &s.Agreements}, {disagree, &s.Disagreements}, {insights, &s.Insights}} {
		if err := json.Unmarshal(f.b, f.dst); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &s, nil
}
