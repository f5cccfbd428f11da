package art

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"

	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
)

var _ adapter.Illustrator = (*Dalle)(nil)

// dall-e-3, standard quality, 1024x1024
const dalleImageCost = 0.04

type Dalle struct {
	client openai.Client
	model  string
}

func NewDalle(client openai.Client, model string) *Dalle {
	if model == "" {
		model = string(openai.ImageModelDallE3)
	}
	return &Dalle{client: client, model: model}
}

func (d *Dalle) Style() model.IllustrationStyle { return model.StyleDalle }

func dallePrompt(req adapter.IllustrationRequest) string {
	return fmt.Sprintf("Create an atmospheric, editorial illustration for a poem titled %q. Themes: %s. "+
		"Style: e-ink aesthetic, minimalist, no text, black and white with subtle warm tones, evocative and contemplative. "+
		"The illustration should capture the emotional essence of the poem. No words or letters in the image.",
		req.Title, strings.Join(req.Themes, ", "))
}

func (d *Dalle) Illustrate(ctx context.Context, req adapter.IllustrationRequest) (adapter.IllustrationResult, error) {
	prompt := dallePrompt(req)
	resp, err := d.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(d.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		Quality:        openai.ImageGenerateParamsQualityStandard,
		Style:          openai.ImageGenerateParamsStyleNatural,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return adapter.IllustrationResult{}, fmt.Errorf("dalle: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return adapter.IllustrationResult{}, errors.New("dalle: no image data returned")
	}
	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return adapter.IllustrationResult{}, fmt.Errorf("dalle decode: %w", err)
	}
	return adapter.IllustrationResult{
		Image:    img,
		MimeType: "image/png",
		Prompt:   prompt,
		CostUSD:  dalleImageCost,
	}, nil
}
