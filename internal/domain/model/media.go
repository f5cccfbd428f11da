package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DrawCommand is one canvas instruction of a minimalist illustration.
type DrawCommand struct {
	Type       string   `json:"type"` // moveTo|lineTo|arc|quadraticCurveTo|bezierCurveTo|closePath
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	X1         *float64 `json:"x1,omitempty"`
	Y1         *float64 `json:"y1,omitempty"`
	X2         *float64 `json:"x2,omitempty"`
	Y2         *float64 `json:"y2,omitempty"`
	Radius     *float64 `json:"radius,omitempty"`
	StartAngle *float64 `json:"startAngle,omitempty"`
	EndAngle   *float64 `json:"endAngle,omitempty"`
}

type IllustrationPath struct {
	Commands  []DrawCommand `json:"commands"`
	Stroke    *bool         `json:"stroke,omitempty"`
	Fill      bool          `json:"fill"`
	LineWidth float64       `json:"lineWidth,omitempty"`
}

type DrawingData struct {
	Paths []IllustrationPath `json:"paths"`
}

type Illustration struct {
	ID           string
	PoemID       string
	Style        IllustrationStyle
	Image        []byte
	MimeType     string
	DrawCommands json.RawMessage
	Prompt       string
	CreatedAt    time.Time
}

func NewIllustration(poemID string, style IllustrationStyle) *Illustration {
	return &Illustration{
		ID:        uuid.NewString(),
		PoemID:    poemID,
		Style:     style,
		CreatedAt: time.Now(),
	}
}

type Narration struct {
	ID          string
	PoemID      string
	VoiceID     string
	VoiceName   string
	VoiceTrack  []byte
	MusicTrack  []byte
	Combined    []byte
	MusicPrompt string
	Language    Language
	Duration    time.Duration
	CreatedAt   time.Time
}

func NewNarration(poemID string, lang Language) *Narration {
	return &Narration{
		ID:        uuid.NewString(),
		PoemID:    poemID,
		Language:  lang,
		CreatedAt: time.Now(),
	}
}

// RegistryEntry is a curated poem known to exist, whose text still has to be researched.
type RegistryEntry struct {
	ID          string   `yaml:"-"`
	Title       string   `yaml:"title"`
	TitleHe     string   `yaml:"title_he,omitempty"`
	Author      string   `yaml:"author"`
	AuthorHe    string   `yaml:"author_he,omitempty"`
	Language    Language `yaml:"language"`
	Themes      []string `yaml:"themes"`
	SearchQuery string   `yaml:"search_query,omitempty"`
	Acquired    bool     `yaml:"-"`
}
