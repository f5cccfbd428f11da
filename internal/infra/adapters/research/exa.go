package research

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

	"poetry-pipeline/internal/domain/ports/adapter"
)

const exaURL = "https://api.exa.ai/search"

var _ adapter.Researcher = (*Exa)(nil)

// Exa runs a neural search. It returns sources only, no answer.
type Exa struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewExa(apiKey string, client *http.Client) *Exa {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Exa{apiKey: apiKey, endpoint: exaURL, client: client}
}

func (e *Exa) Name() string    { return "exa" }
func (e *Exa) Available() bool { return e.apiKey != "" }

type exaResponse struct {
	Results []struct {
		Title         string   `json:"title"`
		URL           string   `json:"url"`
		PublishedDate string   `json:"publishedDate"`
		Text          string   `json:"text"`
		Highlights    []string `json:"highlights"`
	} `json:"results"`
}

func (e *Exa) Research(ctx context.Context, query string, opts adapter.ResearchOptions) (adapter.ResearchResult, error) {
	if !e.Available() {
		return adapter.ResearchResult{}, errors.New("exa: api key not configured")
	}
	q := query
	if opts.Context != "" {
		q = opts.Context + ": " + query
	}
	n := opts.MaxResults
	if n <= 0 {
		n = 10
	}
	body := map[string]any{
		"query":         q,
		"numResults":    n,
		"useAutoprompt": true,
		"type":          "neural",
		"contents": map[string]any{
			"text":       map[string]any{"maxCharacters": 1000},
			"highlights": map[string]any{"numSentences": 3},
		},
	}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(b))
	if err != nil {
		return adapter.ResearchResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return adapter.ResearchResult{}, fmt.Errorf("exa: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return adapter.ResearchResult{}, fmt.Errorf("exa http %d: %s", resp.StatusCode, msg)
	}

	var out exaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.ResearchResult{}, fmt.Errorf("exa decode: %w", err)
	}
	res := adapter.ResearchResult{Tool: e.Name(), CostUSD: 0.001}
	for _, r := range out.Results {
		snippet := strings.Join(r.Highlights, " ")
		if snippet == "" {
			snippet = truncate(r.Text, 300)
		}
		res.Sources = append(res.Sources, adapter.Source{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     plainText(snippet),
			PublishedAt: r.PublishedDate,
			Credibility: Credibility(r.URL),
		})
	}
	return res, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
