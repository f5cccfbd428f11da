package research

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"poetry-pipeline/internal/domain/ports/adapter"
)

var (
	highDomains   = []string{"reuters.com", "bbc.com", "nytimes.com", "nature.com", "arxiv.org"}
	mediumDomains = []string{"wikipedia.org", "wired.com", "techcrunch.com"}
)

// Credibility rates a source URL by its host.
func Credibility(rawURL string) adapter.Credibility {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return adapter.CredibilityUnknown
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") {
		return adapter.CredibilityHigh
	}
	for _, d := range highDomains {
		if strings.Contains(host, d) {
			return adapter.CredibilityHigh
		}
	}
	for _, d := range mediumDomains {
		if strings.Contains(host, d) {
			return adapter.CredibilityMedium
		}
	}
	return adapter.CredibilityUnknown
}

// plainText strips markup search APIs leave in snippets (<strong>, entities).
func plainText(snippet string) string {
	if !strings.ContainsAny(snippet, "<&") {
		return strings.TrimSpace(snippet)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snippet))
	if err != nil {
		return strings.TrimSpace(snippet)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
