package model

import (
	"time"

	"github.com/google/uuid"
)

type Provenance string

const (
	ProvenanceFound     Provenance = "found"
	ProvenanceGenerated Provenance = "generated"
)

// Poem is the acquired text artifact every later phase works on.
type Poem struct {
	ID               string
	Title            string
	TitleHe          string
	Author           string
	AuthorHe         string
	Content          string
	ContentHe        string
	Language         Language
	Themes           []string
	Provenance       Provenance
	SourceModel      string // provider tag that produced or extracted it
	SourceURL        string
	Vocabulary       map[string]string
	LineExplanations map[string]string
	IsPublicDomain   bool
	DedupKey         string
	Fingerprint      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func NewPoem(title, author, content string, lang Language, provenance Provenance, themes []string) *Poem {
	now := time.Now()
	return &Poem{
		ID:             uuid.NewString(),
		Title:          title,
		Author:         author,
		Content:        content,
		Language:       lang,
		Themes:         themes,
		Provenance:     provenance,
		IsPublicDomain: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// DisplayTitle prefers the Hebrew title for Hebrew poems.
func (p *Poem) DisplayTitle() string {
	if p.Language == LanguageHE && p.TitleHe != "" {
		return p.TitleHe
	}
	return p.Title
}

func (p *Poem) DisplayAuthor() string {
	if p.Language == LanguageHE && p.AuthorHe != "" {
		return p.AuthorHe
	}
	return p.Author
}

func (p *Poem) DisplayContent() string {
	if p.Language == LanguageHE && p.ContentHe != "" {
		return p.ContentHe
	}
	return p.Content
}

// PoemPatch is a partial update. Nil pointers and nil maps mean "no change".
type PoemPatch struct {
	Title            *string
	TitleHe          *string
	Author           *string
	AuthorHe         *string
	Content          *string
	ContentHe        *string
	SourceURL        *string
	Provenance       *Provenance
	Themes           []string
	Vocabulary       map[string]string
	LineExplanations map[string]string
	DedupKey         *string
	Fingerprint      *string
}

func (p PoemPatch) IsEmpty() bool {
	return p.Title == nil && p.TitleHe == nil && p.Author == nil && p.AuthorHe == nil &&
		p.Content == nil && p.ContentHe == nil && p.SourceURL == nil && p.Provenance == nil &&
		p.Themes == nil && p.Vocabulary == nil && p.LineExplanations == nil &&
		p.DedupKey == nil && p.Fingerprint == nil
}

// Apply copies the set fields onto poem.
func (p PoemPatch) Apply(poem *Poem) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&poem.Title, p.Title)
	set(&poem.TitleHe, p.TitleHe)
	set(&poem.Author, p.Author)
	set(&poem.AuthorHe, p.AuthorHe)
	set(&poem.Content, p.Content)
	set(&poem.ContentHe, p.ContentHe)
	set(&poem.SourceURL, p.SourceURL)
	set(&poem.DedupKey, p.DedupKey)
	set(&poem.Fingerprint, p.Fingerprint)
	if p.Provenance != nil {
		poem.Provenance = *p.Provenance
	}
	if p.Themes != nil {
		poem.Themes = p.Themes
	}
	if p.Vocabulary != nil {
		poem.Vocabulary = p.Vocabulary
	}
	if p.LineExplanations != nil {
		poem.LineExplanations = p.LineExplanations
	}
	poem.UpdatedAt = time.Now()
}
