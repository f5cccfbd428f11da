package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Provider tags the independent commentary providers.
type Provider string

const (
	ProviderClaude Provider = "CLAUDE"
	ProviderGPT    Provider = "GPT"
	ProviderGemini Provider = "GEMINI"
)

type CommentaryStatus string

const (
	CommentaryCompleted CommentaryStatus = "COMPLETED"
	CommentaryFailed    CommentaryStatus = "FAILED"
)

// Commentary is one provider's structured analysis of a poem.
type Commentary struct {
	ID         string
	PoemID     string
	Provider   Provider
	Model      string
	Literary   string
	Thematic   string
	Emotional  string
	Cultural   string
	Hebrew     string // only for Hebrew poems
	Raw        json.RawMessage
	TokensUsed int
	CostUSD    float64
	Duration   time.Duration
	Status     CommentaryStatus
	CreatedAt  time.Time
}

func NewCommentary(poemID string, provider Provider, model string) *Commentary {
	return &Commentary{
		ID:        uuid.NewString(),
		PoemID:    poemID,
		Provider:  provider,
		Model:     model,
		Status:    CommentaryCompleted,
		CreatedAt: time.Now(),
	}
}

type ProviderInsight struct {
	Model   string `json:"model"`
	Insight string `json:"insight"`
}

// Synthesis compares the completed commentaries of one poem.
type Synthesis struct {
	ID            string
	PoemID        string
	Content       string
	Agreements    []string
	Disagreements []string
	Insights      []ProviderInsight
	Provider      Provider
	TokensUsed    int
	CostUSD       float64
	CreatedAt     time.Time
}

func NewSynthesis(poemID string, provider Provider) *Synthesis {
	return &Synthesis{
		ID:        uuid.NewString(),
		PoemID:    poemID,
		Provider:  provider,
		CreatedAt: time.Now(),
	}
}
