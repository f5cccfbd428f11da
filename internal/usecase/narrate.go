package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
)

// reading pace in words per minute
const wordsPerMinute = 135

type NarrateResult struct {
	Narration *model.Narration
	Skipped   bool
}

type Narrate struct {
	media  repository.MediaRepository
	speech adapter.SpeechSynthesizer
	music  adapter.MusicComposer
	mixer  adapter.AudioMixer
	log    *zerolog.Logger
}

func NewNarrate(media repository.MediaRepository, speech adapter.SpeechSynthesizer, music adapter.MusicComposer, mixer adapter.AudioMixer, logger *zerolog.Logger) *Narrate {
	return &Narrate{media: media, speech: speech, music: music, mixer: mixer, log: logger}
}

// Run reads the poem aloud over a generated music bed. Voice and music are
// produced concurrently and both are awaited before mixing.
func (u *Narrate) Run(ctx context.Context, poem *model.Poem) (*NarrateResult, error) {
	if u.speech == nil || u.music == nil || u.mixer == nil {
		return nil, fmt.Errorf("narration: %w", domain.ErrProviderUnavailable)
	}
	has, err := u.media.HasNarration(ctx, repository.NoTX, poem.ID)
	if err != nil {
		return nil, err
	}
	if has {
		return &NarrateResult{Skipped: true}, nil
	}

	text := VoiceoverText(poem.DisplayTitle(), poem.DisplayContent())
	voice := pickVoice(u.speech.Voices())
	prompt := MusicPrompt(poem.Themes)
	duration := EstimateDuration(poem.DisplayContent())

	var (
		g                      errgroup.Group
		voiceTrack, musicTrack []byte
		voiceErr, musicErr     error
	)
	g.Go(func() error {
		voiceTrack, voiceErr = u.speech.Synthesize(ctx, adapter.SpeechRequest{Text: text, Language: poem.Language, Voice: voice})
		return voiceErr
	})
	g.Go(func() error {
		musicTrack, musicErr = u.music.Compose(ctx, prompt, duration)
		return musicErr
	})
	if g.Wait() != nil {
		return nil, errors.Join(wrapIf("voice", voiceErr), wrapIf("music", musicErr))
	}

	combined, err := u.mixer.Mix(ctx, voiceTrack, musicTrack)
	if err != nil {
		return nil, fmt.Errorf("mix: %w", err)
	}

	n := model.NewNarration(poem.ID, poem.Language)
	n.VoiceID = voice.ID
	n.VoiceName = voice.Name
	n.VoiceTrack = voiceTrack
	n.MusicTrack = musicTrack
	n.Combined = combined
	n.MusicPrompt = prompt
	n.Duration = duration
	if err := u.media.SaveNarration(ctx, repository.NoTX, n); err != nil {
		return nil, err
	}
	u.log.Info().Str("poem_id", poem.ID).Str("voice", voice.Name).Dur("duration", duration).Msg("narration saved")
	return &NarrateResult{Narration: n}, nil
}

func pickVoice(voices []adapter.Voice) adapter.Voice {
	if len(voices) == 0 {
		return adapter.Voice{}
	}
	return voices[rand.Intn(len(voices))]
}

func wrapIf(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}

// MusicPrompt describes the instrumental bed from the first four themes.
func MusicPrompt(themes []string) string {
	if len(themes) > 4 {
		themes = themes[:4]
	}
	mood := strings.Join(themes, ", ")
	if mood == "" {
		mood = "reflection"
	}
	return fmt.Sprintf("Gentle, contemplative instrumental piano piece with subtle strings, evoking themes of %s. "+
		"Soft and meditative, suitable as quiet background for spoken word poetry reading. No vocals, no drums.", mood)
}

// EstimateDuration is the spoken length of text plus five seconds of tail.
func EstimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	secs := math.Ceil(float64(words)/wordsPerMinute*60) + 5
	return time.Duration(secs) * time.Second
}

// VoiceoverText is the title, a pause, then the poem.
func VoiceoverText(title, content string) string {
	return title + ".\n\n" + content
}
