package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/ports/adapter"
)

const PoetryDBBaseURL = "https://poetrydb.org"

const (
	minLines = 4
	maxLines = 80
)

// PreferredAuthors narrows theme searches to poets worth a commentary.
var PreferredAuthors = []string{
	"William Shakespeare",
	"Emily Dickinson",
	"Robert Frost",
	"William Blake",
	"Walt Whitman",
	"Percy Bysshe Shelley",
	"John Keats",
	"William Wordsworth",
	"Edgar Allan Poe",
	"Langston Hughes",
}

// ThemeSearchTerms maps a theme to words likely to appear in matching lines.
var ThemeSearchTerms = map[string][]string{
	"love":   {"love", "heart", "beloved", "passion"},
	"nature": {"tree", "river", "mountain", "flower", "sky"},
	"death":  {"death", "grave", "mortal", "eternal"},
	"time":   {"time", "hour", "moment", "forever"},
	"war":    {"war", "battle", "soldier", "peace"},
	"beauty": {"beauty", "fair", "radiant", "light"},
	"loss":   {"loss", "grief", "mourn", "farewell"},
	"hope":   {"hope", "dream", "dawn", "tomorrow"},
}

// themeOrder keeps GuessThemes deterministic.
var themeOrder = []string{"love", "nature", "death", "time", "war", "beauty", "loss", "hope"}

var _ adapter.PoemCatalog = (*PoetryDB)(nil)

type poetryDBPoem struct {
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Lines     []string `json:"lines"`
	LineCount string   `json:"linecount"`
}

func (p poetryDBPoem) suitable() bool {
	n, err := strconv.Atoi(p.LineCount)
	if err != nil {
		n = len(p.Lines)
	}
	return n >= minLines && n <= maxLines
}

// PoetryDB searches the public-domain poetrydb.org catalog.
type PoetryDB struct {
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
}

func NewPoetryDB(baseURL string, client *http.Client, logger *zerolog.Logger) *PoetryDB {
	if baseURL == "" {
		baseURL = PoetryDBBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &PoetryDB{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     logger,
	}
}

// Find tries the first three themes by line search among preferred authors,
// then three random preferred authors, then random poems.
func (c *PoetryDB) Find(ctx context.Context, themes []string, exclude func(title, author string) bool) (*adapter.CatalogPoem, error) {
	accept := func(p poetryDBPoem) bool {
		return p.suitable() && (exclude == nil || !exclude(p.Title, p.Author))
	}

	if len(themes) > 3 {
		themes = themes[:3]
	}
	for _, theme := range themes {
		terms, ok := ThemeSearchTerms[strings.ToLower(strings.TrimSpace(theme))]
		if !ok {
			continue
		}
		term := terms[rand.Intn(len(terms))]
		poems, err := c.fetch(ctx, "/lines/"+url.PathEscape(term))
		if err != nil {
			return nil, err
		}
		var picks []poetryDBPoem
		for _, p := range poems {
			if preferredAuthor(p.Author) && accept(p) {
				picks = append(picks, p)
			}
		}
		if len(picks) > 0 {
			pick := picks[rand.Intn(len(picks))]
			c.log.Debug().Str("theme", theme).Str("title", pick.Title).Str("author", pick.Author).Msg("poetrydb theme hit")
			return toCatalogPoem(pick), nil
		}
	}

	authors := append([]string(nil), PreferredAuthors...)
	rand.Shuffle(len(authors), func(i, j int) { authors[i], authors[j] = authors[j], authors[i] })
	for _, author := range authors[:3] {
		poems, err := c.fetch(ctx, fmt.Sprintf("/author,poemcount/%s;5", url.PathEscape(author)))
		if err != nil {
			return nil, err
		}
		if pick, ok := c.pick(poems, accept); ok {
			c.log.Debug().Str("author", author).Str("title", pick.Title).Msg("poetrydb author hit")
			return toCatalogPoem(pick), nil
		}
	}

	poems, err := c.fetch(ctx, "/random/5")
	if err != nil {
		return nil, err
	}
	if pick, ok := c.pick(poems, accept); ok {
		return toCatalogPoem(pick), nil
	}
	return nil, fmt.Errorf("poetrydb: no suitable poem: %w", domain.ErrNotFound)
}

func (c *PoetryDB) pick(poems []poetryDBPoem, accept func(poetryDBPoem) bool) (poetryDBPoem, bool) {
	var ok []poetryDBPoem
	for _, p := range poems {
		if accept(p) {
			ok = append(ok, p)
		}
	}
	if len(ok) == 0 {
		return poetryDBPoem{}, false
	}
	return ok[rand.Intn(len(ok))], true
}

// fetch returns an empty slice on PoetryDB's {"status":404} miss object.
func (c *PoetryDB) fetch(ctx context.Context, path string) ([]poetryDBPoem, error) {
	var raw json.RawMessage
	err := retry.Do(
		func() error {
			raw = nil
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/json")
			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("poetrydb http %d", resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(&raw)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("poetrydb %s: %w", path, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, nil
	}
	var poems []poetryDBPoem
	if err := json.Unmarshal(raw, &poems); err != nil {
		return nil, fmt.Errorf("poetrydb decode: %w", err)
	}
	return poems, nil
}

func preferredAuthor(author string) bool {
	a := strings.ToLower(author)
	if a == "" {
		return false
	}
	for _, p := range PreferredAuthors {
		p = strings.ToLower(p)
		if strings.Contains(a, p) || strings.Contains(p, a) {
			return true
		}
	}
	return false
}

func toCatalogPoem(p poetryDBPoem) *adapter.CatalogPoem {
	return &adapter.CatalogPoem{
		Title:  p.Title,
		Author: p.Author,
		Lines:  p.Lines,
		Themes: GuessThemes(p.Lines),
	}
}

// GuessThemes returns up to five themes whose search terms appear in the text.
func GuessThemes(lines []string) []string {
	text := strings.ToLower(strings.Join(lines, " "))
	var found []string
	for _, theme := range themeOrder {
		for _, term := range ThemeSearchTerms[theme] {
			if strings.Contains(text, term) {
				found = append(found, theme)
				break
			}
		}
	}
	if len(found) == 0 {
		return []string{"reflection", "beauty"}
	}
	if len(found) > 5 {
		found = found[:5]
	}
	return found
}
