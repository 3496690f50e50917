package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaProviderUsesOpenAICompat(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"model":"llama-test","choices":[{"message":{"role":"assistant","content":"local reply"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`)
	}))
	defer server.Close()

	provider := NewOllamaProvider(Config{APIURL: server.URL, Model: "llama-test"})

	completion, err := provider.Complete(context.Background(), UserMessage("hi"))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completion.Text != "local reply" {
		t.Fatalf("unexpected text %q", completion.Text)
	}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", got)
	}
	text := "estimate the number of tokens in this sentence"
	got := EstimateTokens(text)
	if got <= 0 || got > len(text) {
		t.Fatalf("estimate out of range: %d", got)
	}
}
