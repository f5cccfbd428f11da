package adapter

import (
	"context"
	"encoding/json"
	"time"

	"poetry-pipeline/internal/domain/model"
)

type IllustrationRequest struct {
	Title    string
	Author   string
	Content  string
	Themes   []string
	Language model.Language
}

type IllustrationResult struct {
	Image        []byte
	MimeType     string
	DrawCommands json.RawMessage
	Prompt       string
	CostUSD      float64
}

// Illustrator produces one image in a fixed style.
type Illustrator interface {
	Style() model.IllustrationStyle
	Illustrate(ctx context.Context, req IllustrationRequest) (IllustrationResult, error)
}

type Voice struct {
	ID   string
	Name string
}

type SpeechRequest struct {
	Text     string
	Language model.Language
	Voice    Voice
}

type SpeechSynthesizer interface {
	Voices() []Voice
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)
}

type MusicComposer interface {
	Compose(ctx context.Context, prompt string, duration time.Duration) ([]byte, error)
}

// AudioMixer lays music under a voice track. The result is as long as the voice.
type AudioMixer interface {
	Mix(ctx context.Context, voice, music []byte) ([]byte, error)
}
