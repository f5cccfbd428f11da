package audio

import (
	"math/rand"

	"poetry-pipeline/internal/domain/ports/adapter"
)

// PoetryVoices is the curated reading voice pool.
var PoetryVoices = []adapter.Voice{
	{ID: "pFZP5JQG7iQjIQuC4Bku", Name: "Lily"},
	{ID: "EXAVITQu4vr4xnSDxMaL", Name: "Sarah"},
	{ID: "FGY2WhTYpPnrIDTdsKH5", Name: "Laura"},
	{ID: "TX3LPaxmHKxFdv7VOQHJ", Name: "Liam"},
	{ID: "IKne3meq5aSn9XLyUdCD", Name: "Charlie"},
	{ID: "JBFqnCBsd6RMkjVDRZzb", Name: "George"},
	{ID: "XB0fDUnXU5powFXDhCwa", Name: "Charlotte"},
	{ID: "bIHbv24MWmeRgasZH58o", Name: "Will"},
}

// VoiceSettings tuned for slow, expressive reading.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	Speed           float64 `json:"speed"`
}

var PoetryVoiceSettings = VoiceSettings{Stability: 0.40, SimilarityBoost: 0.75, Style: 0.20, Speed: 0.90}

// RandomVoice picks from voices, or from PoetryVoices when empty.
func RandomVoice(voices []adapter.Voice) adapter.Voice {
	if len(voices) == 0 {
		voices = PoetryVoices
	}
	return voices[rand.Intn(len(voices))]
}
