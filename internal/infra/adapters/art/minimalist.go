package art

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/structured"
)

var _ adapter.Illustrator = (*Minimalist)(nil)

var drawingSchema = structured.MustCompileSchema("drawing", `{
	"type": "object",
	"required": ["paths"],
	"properties": {
		"paths": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["commands"],
				"properties": {
					"commands": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["type"],
							"properties": {
								"type": {"enum": ["moveTo", "lineTo", "arc", "quadraticCurveTo", "bezierCurveTo", "closePath"]}
							}
						}
					}
				}
			}
		}
	}
}`)

// Minimalist asks a text model for pen-and-ink draw commands and renders them to SVG.
type Minimalist struct {
	gen adapter.TextGenerator
	log *zerolog.Logger
}

func NewMinimalist(gen adapter.TextGenerator, logger *zerolog.Logger) *Minimalist {
	l := logger.With().Str("component", "MinimalistIllustrator").Logger()
	return &Minimalist{gen: gen, log: &l}
}

func (m *Minimalist) Style() model.IllustrationStyle { return model.StyleMinimalist }

func drawingPrompt(req adapter.IllustrationRequest) string {
	first := []rune(req.Content)
	if len(first) > 200 {
		first = first[:200]
	}
	return fmt.Sprintf(`You are an illustrator creating a minimalist pen-and-ink style illustration for a poem. Based on the poem below, create a detailed line drawing that represents its main theme or mood.

Title: %s
Themes: %s
First lines: %s

Generate drawing commands for a minimalist, e-ink style illustration. The canvas is 400x500 units. Create something evocative and related to the poem's themes - like a natural scene, symbolic object, or abstract pattern.

Respond ONLY with valid JSON in this exact format (no other text):
{
  "paths": [
    {
      "commands": [
        {"type": "moveTo", "x": 100, "y": 100},
        {"type": "lineTo", "x": 200, "y": 100},
        {"type": "closePath"}
      ],
      "stroke": true,
      "fill": false,
      "lineWidth": 2
    }
  ]
}

Available command types:
- moveTo: {type: "moveTo", x, y}
- lineTo: {type: "lineTo", x, y}
- arc: {type: "arc", x, y, radius, startAngle, endAngle} (angles in radians)
- quadraticCurveTo: {type: "quadraticCurveTo", x1, y1, x, y}
- bezierCurveTo: {type: "bezierCurveTo", x1, y1, x2, y2, x, y}
- closePath: {type: "closePath"}

Create 15-30 paths for a detailed illustration. Use lineWidth 1-3.`,
		req.Title, strings.Join(req.Themes, ", "), string(first))
}

// Illustrate fails only when the model call fails. Output that cannot be
// decoded falls back to the default quill drawing.
func (m *Minimalist) Illustrate(ctx context.Context, req adapter.IllustrationRequest) (adapter.IllustrationResult, error) {
	gen, err := m.gen.Generate(ctx, drawingPrompt(req), adapter.GenerateOptions{Temperature: 0.8, MaxTokens: 4000, JSON: true})
	if err != nil {
		return adapter.IllustrationResult{}, fmt.Errorf("minimalist drawing: %w", err)
	}
	drawing, ok := structured.Decode[model.DrawingData](gen.Text, drawingSchema)
	if !ok {
		m.log.Warn().Str("finish_reason", gen.FinishReason).Msg("draw commands not recoverable, using default drawing")
		drawing = DefaultDrawing()
	}
	cmds, _ := json.Marshal(drawing)
	return adapter.IllustrationResult{
		Image:        []byte(RenderSVG(drawing)),
		MimeType:     "image/svg+xml",
		DrawCommands: cmds,
		Prompt:       fmt.Sprintf("Minimalist pen-and-ink illustration for poem %q with themes: %s", req.Title, strings.Join(req.Themes, ", ")),
		CostUSD:      gen.CostUSD,
	}, nil
}
