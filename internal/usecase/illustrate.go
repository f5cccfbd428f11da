package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
)

type IllustrateResult struct {
	Illustration *model.Illustration
	// Style actually used; differs from the requested one after a fallback.
	Style   model.IllustrationStyle
	Skipped bool
	Cost    float64
}

type Illustrate struct {
	media        repository.MediaRepository
	illustrators map[model.IllustrationStyle]adapter.Illustrator
	log          *zerolog.Logger
}

func NewIllustrate(media repository.MediaRepository, illustrators []adapter.Illustrator, logger *zerolog.Logger) *Illustrate {
	byStyle := make(map[model.IllustrationStyle]adapter.Illustrator, len(illustrators))
	for _, il := range illustrators {
		if il != nil {
			byStyle[il.Style()] = il
		}
	}
	return &Illustrate{media: media, illustrators: byStyle, log: logger}
}

// Run draws the poem in the requested style, then in the alternate style if
// that fails. A poem that already has an illustration is skipped.
func (u *Illustrate) Run(ctx context.Context, poem *model.Poem, style model.IllustrationStyle) (*IllustrateResult, error) {
	has, err := u.media.HasIllustration(ctx, repository.NoTX, poem.ID)
	if err != nil {
		return nil, err
	}
	if has {
		return &IllustrateResult{Style: style, Skipped: true}, nil
	}

	req := adapter.IllustrationRequest{
		Title:    poem.DisplayTitle(),
		Author:   poem.DisplayAuthor(),
		Content:  poem.DisplayContent(),
		Themes:   poem.Themes,
		Language: poem.Language,
	}

	var (
		errs []error
		cost float64
	)
	for _, s := range []model.IllustrationStyle{style, style.Alternate()} {
		il, ok := u.illustrators[s]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", s, domain.ErrProviderUnavailable))
			continue
		}
		out, err := il.Illustrate(ctx, req)
		cost += out.CostUSD
		if err != nil {
			u.log.Warn().Err(err).Str("style", string(s)).Str("poem_id", poem.ID).Msg("illustration failed")
			errs = append(errs, fmt.Errorf("%s: %w", s, err))
			continue
		}

		ill := model.NewIllustration(poem.ID, s)
		ill.Image = out.Image
		ill.MimeType = out.MimeType
		ill.DrawCommands = out.DrawCommands
		ill.Prompt = out.Prompt
		if err := u.media.SaveIllustration(ctx, repository.NoTX, ill); err != nil {
			return nil, err
		}
		return &IllustrateResult{Illustration: ill, Style: s, Cost: cost}, nil
	}
	return &IllustrateResult{Style: style, Cost: cost}, errors.Join(errs...)
}
