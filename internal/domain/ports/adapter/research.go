package adapter

import "context"

type Credibility string

const (
	CredibilityHigh    Credibility = "high"
	CredibilityMedium  Credibility = "medium"
	CredibilityUnknown Credibility = "unknown"
)

type Source struct {
	Title       string
	URL         string
	Snippet     string
	PublishedAt string
	Credibility Credibility
}

type ResearchOptions struct {
	MaxResults int
	// Context is prepended to the query by search tools that do not reason over it.
	Context string
}

type ResearchResult struct {
	Answer  string
	Sources []Source
	Tool    string
	CostUSD float64
}

// Researcher answers a web research query.
type Researcher interface {
	Research(ctx context.Context, query string, opts ResearchOptions) (ResearchResult, error)
}
