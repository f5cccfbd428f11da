package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
)

func storedPoem(t *testing.T, poems *memPoemRepo) *model.Poem {
	t.Helper()
	p := model.NewPoem("Daffodils", "William Wordsworth", "I wandered lonely as a cloud\nThat floats on high", model.LanguageEN, model.ProvenanceFound, []string{"nature", "joy"})
	if err := poems.Create(context.Background(), repository.NoTX, p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestIllustrate_FallsBackToAlternateStyle(t *testing.T) {
	media := newMemMediaRepo()
	dalle := &fakeIllustrator{style: model.StyleDalle, err: errBoom}
	mini := &fakeIllustrator{style: model.StyleMinimalist}
	u := NewIllustrate(media, []adapter.Illustrator{dalle, mini}, &nopLog)
	poem := model.NewPoem("t", "a", "c", model.LanguageEN, model.ProvenanceFound, nil)

	res, err := u.Run(context.Background(), poem, model.StyleDalle)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Style != model.StyleMinimalist || dalle.calls != 1 {
		t.Errorf("expected minimalist fallback, got %s", res.Style)
	}

	again, err := u.Run(context.Background(), poem, model.StyleDalle)
	if err != nil || !again.Skipped || dalle.calls != 1 {
		t.Errorf("existing illustration should be reused, got %+v, %v", again, err)
	}
}

func TestIllustrate_BothStylesFail(t *testing.T) {
	u := NewIllustrate(newMemMediaRepo(), []adapter.Illustrator{
		&fakeIllustrator{style: model.StyleDalle, err: errBoom},
	}, &nopLog)
	poem := model.NewPoem("t", "a", "c", model.LanguageEN, model.ProvenanceFound, nil)

	_, err := u.Run(context.Background(), poem, model.StyleDalle)
	if !errors.Is(err, errBoom) || !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("expected both failures joined, got %v", err)
	}
}

func TestNarrate(t *testing.T) {
	media := newMemMediaRepo()
	music := &fakeMusic{}
	u := NewNarrate(media, &fakeSpeech{}, music, fakeMixer{}, &nopLog)
	poem := model.NewPoem("Night", "a", strings.Repeat("word ", 135), model.LanguageEN, model.ProvenanceFound, []string{"night"})

	res, err := u.Run(context.Background(), poem)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	n := res.Narration
	if n.VoiceName != "Lily" || string(n.Combined) != "voice:v1music" {
		t.Errorf("unexpected narration %+v", n)
	}
	if music.duration != 65*time.Second {
		t.Errorf("expected 65s music bed, got %s", music.duration)
	}

	t.Run("voice failure fails the phase", func(t *testing.T) {
		u := NewNarrate(newMemMediaRepo(), &fakeSpeech{err: errBoom}, &fakeMusic{}, fakeMixer{}, &nopLog)
		if _, err := u.Run(context.Background(), poem); !errors.Is(err, errBoom) {
			t.Errorf("expected voice error, got %v", err)
		}
	})

	t.Run("unconfigured", func(t *testing.T) {
		u := NewNarrate(newMemMediaRepo(), nil, nil, nil, &nopLog)
		if _, err := u.Run(context.Background(), poem); !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})
}

func TestNarrationHelpers(t *testing.T) {
	if d := EstimateDuration(""); d != 5*time.Second {
		t.Errorf("empty text should be the tail only, got %s", d)
	}
	if d := EstimateDuration(strings.Repeat("a ", 270)); d != 125*time.Second {
		t.Errorf("270 words should be 2 minutes plus tail, got %s", d)
	}
	p := MusicPrompt([]string{"a", "b", "c", "d", "e"})
	if !strings.Contains(p, "of a, b, c, d.") || strings.Contains(p, ", e") {
		t.Errorf("only four themes expected: %s", p)
	}
	if !strings.Contains(MusicPrompt(nil), "reflection") {
		t.Error("empty themes should default to reflection")
	}
	if VoiceoverText("T", "body") != "T.\n\nbody" {
		t.Error("unexpected voiceover text")
	}
}

func TestGloss_FallbackAndFill(t *testing.T) {
	poems := newMemPoemRepo()
	poem := storedPoem(t, poems)
	first := newGen(model.ProviderGemini).script("vocabulary", "not json").script("lines", "[]")
	second := newGen(model.ProviderClaude)
	u := NewGloss(poems, &fakeResolver{gens: []*scriptedGen{first, second}}, []string{"GEMINI", "CLAUDE"}, &nopLog)

	res, err := u.Run(context.Background(), poem)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.WordsModel != "claude-test" || res.LinesModel != "claude-test" {
		t.Errorf("expected fallback model for both, got %q %q", res.WordsModel, res.LinesModel)
	}
	if res.Words != 1 {
		t.Errorf("case variants should collapse, got %d words", res.Words)
	}
	stored, _ := poems.FindByID(context.Background(), repository.NoTX, poem.ID)
	if stored.LineExplanations["i wandered lonely as a cloud"] != "walked alone" {
		t.Errorf("line explanations not stored: %v", stored.LineExplanations)
	}

	// nothing missing, nothing called
	before := second.callCount("vocabulary")
	if _, err := u.Run(context.Background(), stored); err != nil {
		t.Fatal(err)
	}
	if second.callCount("vocabulary") != before {
		t.Error("existing gloss must not be regenerated")
	}
}

func TestGloss_AllModelsFail(t *testing.T) {
	poems := newMemPoemRepo()
	poem := storedPoem(t, poems)
	gen := newGen(model.ProviderGemini)
	gen.fail = true
	u := NewGloss(poems, &fakeResolver{gens: []*scriptedGen{gen}}, []string{"GEMINI", "MISSING"}, &nopLog)

	if _, err := u.Run(context.Background(), poem); !errors.Is(err, domain.ErrExtraction) {
		t.Errorf("expected ErrExtraction, got %v", err)
	}
}

func TestGloss_MalformedEntriesAreDropped(t *testing.T) {
	poems := newMemPoemRepo()
	poem := storedPoem(t, poems)
	gen := newGen(model.ProviderGemini).
		script("vocabulary", `[{"word":"cloud","definition":"vapour"},{"word":"lonely","definition":null},"stray"]`).
		script("lines", `[{"line":"I wandered lonely as a cloud","explanation":"walked alone"},{"line":"That floats on high"}]`)
	u := NewGloss(poems, &fakeResolver{gens: []*scriptedGen{gen}}, []string{"GEMINI"}, &nopLog)

	res, err := u.Run(context.Background(), poem)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Words != 1 || res.Lines != 1 {
		t.Fatalf("expected the valid entry of each list, got %d words %d lines", res.Words, res.Lines)
	}
	stored, _ := poems.FindByID(context.Background(), repository.NoTX, poem.ID)
	if stored.Vocabulary["cloud"] != "vapour" {
		t.Errorf("vocabulary = %v", stored.Vocabulary)
	}
	if _, ok := stored.LineExplanations["that floats on high"]; ok {
		t.Errorf("line without explanation kept: %v", stored.LineExplanations)
	}
}

func TestCompare_DropsMalformedItems(t *testing.T) {
	comments := &memCommentRepo{}
	syntheses := newMemSynthesisRepo()
	poem := model.NewPoem("t", "a", "c", model.LanguageEN, model.ProvenanceFound, nil)
	_ = comments.Create(context.Background(), repository.NoTX, model.NewCommentary(poem.ID, model.ProviderClaude, "m1"))
	_ = comments.Create(context.Background(), repository.NoTX, model.NewCommentary(poem.ID, model.ProviderGPT, "m2"))
	gen := newGen(model.ProviderClaude).script("comparison",
		`{"comparisonContent":"They agree.","agreements":["tone",3],"insights":[{"model":"CLAUDE","insight":"x"},{"model":"GPT"},"odd"]}`)
	u := NewCompare(comments, syntheses, &fakeResolver{gens: []*scriptedGen{gen}}, "CLAUDE", &nopLog)

	res, err := u.Run(context.Background(), poem)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	s := res.Synthesis
	if len(s.Agreements) != 1 || s.Agreements[0] != "tone" || len(s.Disagreements) != 0 {
		t.Errorf("agreements %v disagreements %v", s.Agreements, s.Disagreements)
	}
	if len(s.Insights) != 1 || s.Insights[0].Model != "CLAUDE" {
		t.Errorf("insights = %+v", s.Insights)
	}
}

func TestAnalyze_StrictRetryRecovers(t *testing.T) {
	comments := &memCommentRepo{}
	gen := newGen(model.ProviderGPT).script("analysis", "```json\n{\"literaryAnalysis\": ", analysisJSON)
	u := NewAnalyze(comments, &fakeResolver{gens: []*scriptedGen{gen}}, nil, &nopLog)
	poem := model.NewPoem("t", "a", "c", model.LanguageEN, model.ProvenanceFound, nil)

	res, err := u.Run(context.Background(), poem)
	if err != nil {
		t.Fatal(err)
	}
	if res.Completed != 1 || res.Failed != 0 {
		t.Fatalf("second attempt should succeed, got %+v", res)
	}
	stored, _ := comments.ListCompleted(context.Background(), repository.NoTX, poem.ID)
	if len(stored) != 1 || stored[0].Literary != "iambic" || stored[0].CostUSD != 0.02 {
		t.Errorf("unexpected stored commentary %+v", stored)
	}
}

func TestCompare_NeedsTwo(t *testing.T) {
	comments := &memCommentRepo{}
	poem := model.NewPoem("t", "a", "c", model.LanguageEN, model.ProvenanceFound, nil)
	_ = comments.Create(context.Background(), repository.NoTX, model.NewCommentary(poem.ID, model.ProviderClaude, "m"))
	u := NewCompare(comments, newMemSynthesisRepo(), &fakeResolver{gens: []*scriptedGen{newGen(model.ProviderClaude)}}, "CLAUDE", &nopLog)

	if _, err := u.Run(context.Background(), poem); !errors.Is(err, domain.ErrNotEnoughCommentaries) {
		t.Errorf("expected ErrNotEnoughCommentaries, got %v", err)
	}
}

func TestSlug(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*-[0-9a-z]{26}$`)
	cases := map[string]string{
		"Ozymandias":                       "ozymandias-",
		"  Ode on a Grecian Urn!  ":        "ode-on-a-grecian-urn-",
		"Café Noir":                        "cafe-noir-",
		"אל ארצי":                          "poem-",
		"I Wandered Lonely as a Cloud (1)": "i-wandered-lonely-as-a-cloud-1-",
	}
	for title, prefix := range cases {
		s := Slug(title)
		if !strings.HasPrefix(s, prefix) || !pattern.MatchString(s) {
			t.Errorf("Slug(%q) = %q", title, s)
		}
	}
	if Slug("same") == Slug("same") {
		t.Error("slugs should be unique")
	}
	if base := slugBase(strings.Repeat("long title ", 20)); len(base) > 60 || strings.HasSuffix(base, "-") {
		t.Errorf("base should be capped at 60 without trailing dash, got %q", base)
	}
}

func TestPublish_ReusesPublication(t *testing.T) {
	pubs := newMemPubRepo()
	u := NewPublish(pubs, &nopLog)
	poem := model.NewPoem("Ozymandias", "Shelley", "c", model.LanguageEN, model.ProvenanceFound, nil)

	first, err := u.Run(context.Background(), poem)
	if err != nil || first.Reused || first.Publication.Status != model.PublicationDraft {
		t.Fatalf("first publish: %+v, %v", first, err)
	}
	second, err := u.Run(context.Background(), poem)
	if err != nil || !second.Reused || second.Publication.ID != first.Publication.ID {
		t.Fatalf("second publish should reuse, got %+v, %v", second, err)
	}
}
