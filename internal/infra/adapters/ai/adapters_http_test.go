package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
)

func TestClaudeAdapter_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-opus-4-5-20251101",
			"content":[{"type":"text","text":"{\"ok\":"},{"type":"text","text":"true}"}],
			"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":1000,"output_tokens":2000}
		}`)
	}))
	defer srv.Close()

	c, err := NewClaudeAdapter("key", "claude-opus-4-5-20251101", srv.URL, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	gen, err := c.Generate(context.Background(), "analyze", adapter.GenerateOptions{Temperature: 0.5, MaxTokens: 4096, System: "be terse"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Text != `{"ok":true}` {
		t.Errorf("text = %q", gen.Text)
	}
	if gen.Usage.TotalTokens != 3000 || gen.FinishReason != "end_turn" {
		t.Errorf("unexpected usage/finish %+v %s", gen.Usage, gen.FinishReason)
	}
	if want := 1000.0/1e6*5 + 2000.0/1e6*25; gen.CostUSD != want {
		t.Errorf("cost = %v, want %v", gen.CostUSD, want)
	}
	if body["max_tokens"] != float64(4096) {
		t.Errorf("max_tokens not sent: %v", body["max_tokens"])
	}
	if c.Provider() != model.ProviderClaude {
		t.Error("wrong provider tag")
	}
}

func TestClaudeAdapter_NoRetryOnError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	}))
	defer srv.Close()

	c, _ := NewClaudeAdapter("key", "", srv.URL, 5*time.Second)
	if _, err := c.Generate(context.Background(), "x", adapter.GenerateOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("adapter retried: %d calls", calls)
	}
}

func TestOpenAIAdapter_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello"}}],
			"usage":{"prompt_tokens":100,"completion_tokens":50,"total_tokens":150}
		}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient("key", srv.URL, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	o := NewOpenAIAdapter(client, "gpt-4o")
	gen, err := o.Generate(context.Background(), "hi", adapter.GenerateOptions{JSON: true, System: "sys", MaxTokens: 10})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Text != "hello" || gen.Usage.TotalTokens != 150 || gen.FinishReason != "stop" {
		t.Errorf("unexpected generation %+v", gen)
	}
	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("json mode not requested: %v", body["response_format"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("expected system+user messages, got %d", len(msgs))
	}
}

func TestGeminiAdapter_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates":[{"content":{"role":"model","parts":[{"text":"[1,2]"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":20,"totalTokenCount":30}
		}`)
	}))
	defer srv.Close()

	g, err := NewGeminiAdapter(context.Background(), "key", srv.URL, "gemini-3-flash-preview", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	gen, err := g.Generate(context.Background(), "words", adapter.GenerateOptions{JSON: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Text != "[1,2]" || gen.Usage.TotalTokens != 30 || gen.FinishReason != "STOP" {
		t.Errorf("unexpected generation %+v", gen)
	}
}
