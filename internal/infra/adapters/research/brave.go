package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"poetry-pipeline/internal/domain/ports/adapter"
)

const braveURL = "https://api.search.brave.com/res/v1/web/search"

var _ adapter.Researcher = (*Brave)(nil)

type Brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewBrave(apiKey string, client *http.Client) *Brave {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Brave{apiKey: apiKey, endpoint: braveURL, client: client}
}

func (b *Brave) Name() string    { return "brave" }
func (b *Brave) Available() bool { return b.apiKey != "" }

type braveResponse struct {
	Web *struct {
		Results []struct {
			Title         string   `json:"title"`
			URL           string   `json:"url"`
			Description   string   `json:"description"`
			Age           string   `json:"age"`
			PageAge       string   `json:"page_age"`
			ExtraSnippets []string `json:"extra_snippets"`
		} `json:"results"`
	} `json:"web"`
}

func (b *Brave) Research(ctx context.Context, query string, opts adapter.ResearchOptions) (adapter.ResearchResult, error) {
	if !b.Available() {
		return adapter.ResearchResult{}, errors.New("brave: api key not configured")
	}
	q := query
	if opts.Context != "" {
		q = opts.Context + " " + query
	}
	n := opts.MaxResults
	if n <= 0 {
		n = 10
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("count", strconv.Itoa(n))
	params.Set("safesearch", "moderate")
	params.Set("text_decorations", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return adapter.ResearchResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return adapter.ResearchResult{}, fmt.Errorf("brave: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return adapter.ResearchResult{}, fmt.Errorf("brave http %d: %s", resp.StatusCode, msg)
	}

	var out braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return adapter.ResearchResult{}, fmt.Errorf("brave decode: %w", err)
	}
	res := adapter.ResearchResult{Tool: b.Name(), CostUSD: 0.005}
	if out.Web == nil {
		return res, nil
	}
	for _, r := range out.Web.Results {
		snippet := strings.Join(r.ExtraSnippets, " ")
		if snippet == "" {
			snippet = r.Description
		}
		published := r.PageAge
		if published == "" {
			published = r.Age
		}
		res.Sources = append(res.Sources, adapter.Source{
			Title:       plainText(r.Title),
			URL:         r.URL,
			Snippet:     plainText(snippet),
			PublishedAt: published,
			Credibility: Credibility(r.URL),
		})
	}
	return res, nil
}
