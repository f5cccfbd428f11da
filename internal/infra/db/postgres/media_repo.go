package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/repository"
)

var (
	_ repository.MediaRepository       = (*mediaRepo)(nil)
	_ repository.PublicationRepository = (*publicationRepo)(nil)
)

type mediaRepo struct {
	pool *pgxpool.Pool
}

func NewMediaRepo(pool *pgxpool.Pool) *mediaRepo {
	return &mediaRepo{pool: pool}
}

func (r *mediaRepo) SaveIllustration(ctx context.Context, tx repository.Tx, ill *model.Illustration) error {
	var cmds []byte
	if len(ill.DrawCommands) > 0 {
		cmds = ill.DrawCommands
	}
	const q = `
INSERT INTO illustrations (id, poem_id, style, image, mime_type, draw_commands, prompt, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`
	_, err := execSQL(ctx, r.pool, tx, q, ill.ID, ill.PoemID, ill.Style, ill.Image, ill.MimeType, cmds, ill.Prompt, ill.CreatedAt)
	return err
}

func (r *mediaRepo) HasIllustration(ctx context.Context, tx repository.Tx, poemID string) (bool, error) {
	return r.exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM illustrations WHERE poem_id = $1)`, poemID)
}

func (r *mediaRepo) SaveNarration(ctx context.Context, tx repository.Tx, n *model.Narration) error {
	const q = `
INSERT INTO narrations (id, poem_id, voice_id, voice_name, voice_track, music_track, combined,
                        music_prompt, language, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`
	_, err := execSQL(ctx, r.pool, tx, q, n.ID, n.PoemID, n.VoiceID, n.VoiceName, n.VoiceTrack, n.MusicTrack, n.Combined,
		n.MusicPrompt, n.Language, n.Duration.Milliseconds(), n.CreatedAt)
	return err
}

func (r *mediaRepo) HasNarration(ctx context.Context, tx repository.Tx, poemID string) (bool, error) {
	return r.exists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM narrations WHERE poem_id = $1)`, poemID)
}

func (r *mediaRepo) exists(ctx context.Context, tx repository.Tx, q, poemID string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, q, poemID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

type publicationRepo struct {
	pool *pgxpool.Pool
}

func NewPublicationRepo(pool *pgxpool.Pool) *publicationRepo {
	return &publicationRepo{pool: pool}
}

func (r *publicationRepo) Create(ctx context.Context, tx repository.Tx, p *model.Publication) error {
	const q = `
INSERT INTO publications (id, poem_id, slug, status, published_at, rejection_reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.PoemID, p.Slug, p.Status, p.PublishedAt, p.RejectionReason, p.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("publication for poem %s: %w", p.PoemID, domain.ErrAlreadyExists)
	}
	return err
}

func (r *publicationRepo) FindByPoemID(ctx context.Context, tx repository.Tx, poemID string) (*model.Publication, error) {
	const q = `
SELECT id, poem_id, slug, status, published_at, rejection_reason, created_at
  FROM publications WHERE poem_id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, poemID)
	if err != nil {
		return nil, err
	}
	var (
		p      model.Publication
		status string
	)
	if err := row.Scan(&p.ID, &p.PoemID, &p.Slug, &status, &p.PublishedAt, &p.RejectionReason, &p.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	p.Status = model.PublicationStatus(status)
	return &p, nil
}
