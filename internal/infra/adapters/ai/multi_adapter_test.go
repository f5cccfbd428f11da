package ai_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	ai "poetry-pipeline/internal/infra/adapters/ai"
)

type stubGen struct {
	provider model.Provider
	model    string
	calls    int32
	inFlight int32
	peak     int32
	delay    time.Duration
}

func (s *stubGen) Provider() model.Provider { return s.provider }
func (s *stubGen) Model() string            { return s.model }
func (s *stubGen) Generate(ctx context.Context, prompt string, opts adapter.GenerateOptions) (adapter.Generation, error) {
	atomic.AddInt32(&s.calls, 1)
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(s.delay)
	return adapter.Generation{Text: "ok", Usage: adapter.Usage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2}}, nil
}

func TestResolver_Routing(t *testing.T) {
	t.Parallel()
	claude := &stubGen{provider: model.ProviderClaude, model: "claude-opus-4-5-20251101"}
	gpt := &stubGen{provider: model.ProviderGPT, model: "gpt-4o"}
	gem := &stubGen{provider: model.ProviderGemini, model: "gemini-3-flash-preview"}

	r := ai.NewResolver([]adapter.TextGenerator{claude, gpt, gem},
		[]string{"claude-opus-4-5", "gpt-4o", "gemini-3-flash", "gpt-4o"})

	cases := map[string]adapter.TextGenerator{
		"claude-opus-4-5":        claude,
		"claude-sonnet-4-5":      claude, // provider fallback
		"CLAUDE":                 claude,
		"gpt-4o":                 gpt,
		"GPT":                    gpt,
		"gemini-3-flash":         gem,
		"gemini-3-flash-preview": gem,
	}
	for id, want := range cases {
		got, err := r.Resolve(id)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", id, err)
		}
		if got != want {
			t.Errorf("Resolve(%q) = %s, want %s", id, got.Model(), want.Model())
		}
	}

	if _, err := r.Resolve("llama-3"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("unknown model should be unavailable, got %v", err)
	}

	com := r.Commentators()
	if len(com) != 3 || com[0] != claude || com[1] != gpt || com[2] != gem {
		t.Fatalf("unexpected commentators %v", com)
	}
}

func TestResolver_SkipsUnconfiguredCommentators(t *testing.T) {
	t.Parallel()
	gem := &stubGen{provider: model.ProviderGemini, model: "gemini-3-flash-preview"}
	r := ai.NewResolver([]adapter.TextGenerator{gem}, []string{"claude-opus-4-5", "gemini-3-flash"})
	if com := r.Commentators(); len(com) != 1 || com[0] != gem {
		t.Fatalf("expected only gemini, got %v", com)
	}
}

func TestLimitedGenerator_CapsConcurrency(t *testing.T) {
	t.Parallel()
	inner := &stubGen{provider: model.ProviderGPT, model: "gpt-4o", delay: 20 * time.Millisecond}
	g := ai.NewLimitedGenerator(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Generate(context.Background(), "p", adapter.GenerateOptions{})
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&inner.calls) != 6 {
		t.Fatalf("calls = %d, want 6", inner.calls)
	}
	if p := atomic.LoadInt32(&inner.peak); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
	if g.Provider() != model.ProviderGPT || g.Model() != "gpt-4o" {
		t.Fatal("wrapper must expose inner identity")
	}
}

func TestLimitedGenerator_HonorsContext(t *testing.T) {
	t.Parallel()
	inner := &stubGen{provider: model.ProviderGPT, model: "gpt-4o", delay: 200 * time.Millisecond}
	g := ai.NewLimitedGenerator(inner, 1)
	go func() { _, _ = g.Generate(context.Background(), "p", adapter.GenerateOptions{}) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.Generate(ctx, "p", adapter.GenerateOptions{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
