package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/repository"
)

type PublishResult struct {
	Publication *model.Publication
	Reused      bool
}

type Publish struct {
	pubs repository.PublicationRepository
	log  *zerolog.Logger
}

func NewPublish(pubs repository.PublicationRepository, logger *zerolog.Logger) *Publish {
	return &Publish{pubs: pubs, log: logger}
}

// Run creates the draft publication for poem, or returns the one a previous
// attempt already created.
func (u *Publish) Run(ctx context.Context, poem *model.Poem) (*PublishResult, error) {
	existing, err := u.pubs.FindByPoemID(ctx, repository.NoTX, poem.ID)
	if err == nil {
		return &PublishResult{Publication: existing, Reused: true}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	p := model.NewPublication(poem.ID, Slug(poem.Title))
	if err := u.pubs.Create(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	u.log.Info().Str("poem_id", poem.ID).Str("slug", p.Slug).Msg("draft publication created")
	return &PublishResult{Publication: p}, nil
}

// Slug is the ASCII-folded title plus a lowercase ULID, so it is unique
// without a lookup. Titles with nothing foldable (e.g. Hebrew) use "poem".
func Slug(title string) string {
	base := slugBase(title)
	if base == "" {
		base = "poem"
	}
	return base + "-" + strings.ToLower(ulid.Make().String())
}

func slugBase(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	base := strings.TrimRight(b.String(), "-")
	if len(base) > 60 {
		base = strings.TrimRight(base[:60], "-")
	}
	return base
}
