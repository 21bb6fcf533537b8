package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/louisbranch/undertone/internal/game/normalize"
)

const chatCompletionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o-mini",
  "choices": [
    {
      "index": 0,
      "message": {
        "role": "assistant",
        "content": "{\"visible_text\":\"hello there\",\"private_reasoning\":\"opening move\",\"guess\":null}"
      },
      "finish_reason": "stop"
    }
  ],
  "usage": {"prompt_tokens": 42, "completion_tokens": 17, "total_tokens": 59}
}`

func TestOpenAIInvokeSuccess(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(chatCompletionBody)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	invoker := NewOpenAIInvoker(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	result, err := invoker.Invoke(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if !strings.HasSuffix(gotPath, "/chat/completions") {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if result.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", result.Model)
	}
	if result.Usage.TotalTokens != 59 {
		t.Fatalf("total tokens = %d", result.Usage.TotalTokens)
	}

	out, err := normalize.Normalize(result.Raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.VisibleText != "hello there" || out.PrivateReasoning != "opening move" {
		t.Fatalf("output = %+v", out)
	}
}

func TestOpenAIInvokeProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("x-request-id", "req-123")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	invoker := NewOpenAIInvoker(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := invoker.Invoke(context.Background(), "say hello")
	if err == nil {
		t.Fatal("expected error")
	}
	failure := failureFromError(err)
	if failure.Class != ClassProvider {
		t.Fatalf("class = %s, want %s", failure.Class, ClassProvider)
	}
	if failure.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", failure.StatusCode)
	}
	if failure.RequestID != "req-123" {
		t.Fatalf("request id = %q", failure.RequestID)
	}
}

func TestOpenAIInvokeEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o-mini","choices":[]}`))
	}))
	defer server.Close()

	invoker := NewOpenAIInvoker(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := invoker.Invoke(context.Background(), "say hello")
	failure := failureFromError(err)
	if failure == nil || failure.Class != ClassProvider {
		t.Fatalf("failure = %+v", failure)
	}
}
