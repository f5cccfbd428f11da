package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
)

const (
	ElevenLabsAPIBaseURL = "https://api.elevenlabs.io/v1"
	modelMultilingual    = "eleven_multilingual_v2"
	modelV3              = "eleven_v3"
	outputFormat         = "mp3_44100_128"
)

var (
	_ adapter.SpeechSynthesizer = (*ElevenLabs)(nil)
	_ adapter.MusicComposer     = (*ElevenLabs)(nil)
)

// ElevenLabs covers both text-to-speech and sound generation.
type ElevenLabs struct {
	apiKey   string
	baseURL  string
	ttsModel string
	settings VoiceSettings
	client   *http.Client
}

func NewElevenLabs(apiKey, baseURL string, timeout time.Duration) (*ElevenLabs, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: empty api key")
	}
	if baseURL == "" {
		baseURL = ElevenLabsAPIBaseURL
	}
	if timeout <= 0 {
		timeout = 300 * time.Second // TTS can be slow for long text
	}
	return &ElevenLabs{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		ttsModel: modelMultilingual,
		settings: PoetryVoiceSettings,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (e *ElevenLabs) Voices() []adapter.Voice { return PoetryVoices }

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	LanguageCode  string        `json:"language_code,omitempty"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Synthesize reads text aloud. Hebrew goes through eleven_v3, which handles it natively.
func (e *ElevenLabs) Synthesize(ctx context.Context, req adapter.SpeechRequest) ([]byte, error) {
	if req.Voice.ID == "" {
		return nil, errors.New("elevenlabs: voice id is required")
	}
	body := ttsRequest{
		Text:          req.Text,
		ModelID:       e.ttsModel,
		LanguageCode:  "en",
		VoiceSettings: e.settings,
	}
	if req.Language == model.LanguageHE {
		body.ModelID = modelV3
		body.LanguageCode = "heb"
	}
	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, req.Voice.ID, outputFormat)
	return e.post(ctx, url, body)
}

// Compose generates an instrumental bed of the given length.
func (e *ElevenLabs) Compose(ctx context.Context, prompt string, duration time.Duration) ([]byte, error) {
	body := struct {
		Text            string  `json:"text"`
		DurationSeconds float64 `json:"duration_seconds"`
	}{Text: prompt, DurationSeconds: duration.Seconds()}
	return e.post(ctx, e.baseURL+"/sound-generation?output_format="+outputFormat, body)
}

func (e *ElevenLabs) post(ctx context.Context, url string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs http %d: %s", resp.StatusCode, msg)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs read: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("elevenlabs: empty audio")
	}
	return audio, nil
}
