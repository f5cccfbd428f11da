package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"poetry-pipeline/internal/domain/ports/adapter"
)

const perplexityURL = "https://api.perplexity.ai/chat/completions"

var _ adapter.Researcher = (*Perplexity)(nil)

// Perplexity answers with the sonar model and returns its citations as sources.
type Perplexity struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewPerplexity(apiKey string, client *http.Client) *Perplexity {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Perplexity{apiKey: apiKey, endpoint: perplexityURL, client: client}
}

func (p *Perplexity) Name() string    { return "perplexity" }
func (p *Perplexity) Available() bool { return p.apiKey != "" }

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Choices []struct {
		Message perplexityMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Citations []string `json:"citations"`
}

func (p *Perplexity) Research(ctx context.Context, query string, opts adapter.ResearchOptions) (adapter.ResearchResult, error) {
	if !p.Available() {
		return adapter.ResearchResult{}, errors.New("perplexity: api key not configured")
	}
	system := "You are a research assistant. Provide accurate, well-sourced information."
	if opts.Context != "" {
		system = fmt.Sprintf("You are a research assistant. Context: %s. Provide accurate, well-sourced information.", opts.Context)
	}
	reqBody := struct {
		Model           string              `json:"model"`
		Messages        []perplexityMessage `json:"messages"`
		Temperature     float64             `json:"temperature"`
		MaxTokens       int                 `json:"max_tokens"`
		ReturnCitations bool                `json:"return_citations"`
	}{
		Model:           "sonar",
		Messages:        []perplexityMessage{{Role: "system", Content: system}, {Role: "user", Content: query}},
		Temperature:     0.2,
		MaxTokens:       2048,
		ReturnCitations: true,
	}
	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(b))
	if err != nil {
		return adapter.ResearchResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return adapter.ResearchResult{}, fmt.Errorf("perplexity: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return adapter.ResearchResult{}, fmt.Errorf("perplexity http %d: %s", resp.StatusCode, msg)
	}

	var out perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.ResearchResult{}, fmt.Errorf("perplexity decode: %w", err)
	}
	res := adapter.ResearchResult{
		Tool:    p.Name(),
		CostUSD: float64(out.Usage.TotalTokens) / 1e6 * 0.2,
	}
	if len(out.Choices) > 0 {
		res.Answer = out.Choices[0].Message.Content
	}
	for i, u := range out.Citations {
		res.Sources = append(res.Sources, adapter.Source{
			Title:       fmt.Sprintf("Source %d", i+1),
			URL:         u,
			Credibility: Credibility(u),
		})
	}
	return res, nil
}
