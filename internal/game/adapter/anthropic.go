package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/louisbranch/undertone/internal/game/normalize"
)

// AnthropicConfig configures the Anthropic messages invoker.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MessagesURL string
	MaxTokens   int
	HTTPClient  *http.Client
}

const (
	defaultAnthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	defaultAnthropicModel       = "claude-sonnet-4-20250514"
	anthropicVersion            = "2023-06-01"
	defaultMaxTokens            = 2000
)

type anthropicInvoker struct {
	cfg AnthropicConfig
}

// NewAnthropicInvoker builds an invoker backed by the Anthropic messages API.
func NewAnthropicInvoker(cfg AnthropicConfig) Invoker {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.MessagesURL) == "" {
		cfg.MessagesURL = defaultAnthropicMessagesURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &anthropicInvoker{cfg: cfg}
}

func (a *anthropicInvoker) Invoke(ctx context.Context, promptText string) (Result, error) {
	apiKey := strings.TrimSpace(a.cfg.APIKey)
	if apiKey == "" {
		return Result{}, &Failure{Class: ClassPrecondition, Detail: "anthropic api key is required"}
	}
	if strings.TrimSpace(promptText) == "" {
		return Result{}, &Failure{Class: ClassPrecondition, Detail: "prompt is required"}
	}

	requestBody, err := json.Marshal(map[string]any{
		"model":      a.cfg.Model,
		"max_tokens": a.cfg.MaxTokens,
		"messages": []map[string]any{
			{"role": "user", "content": promptText},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal messages request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.MessagesURL, bytes.NewReader(requestBody))
	if err != nil {
		return Result{}, fmt.Errorf("build messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Credential material is sent only as a header and never echoed in errors.
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	res, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("messages request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return Result{}, fmt.Errorf("read messages error body: %w", err)
		}
		return Result{}, &Failure{
			Class:      ClassProvider,
			Detail:     strings.TrimSpace(string(body)),
			StatusCode: res.StatusCode,
			RequestID:  res.Header.Get("request-id"),
		}
	}

	var payload struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode messages response: %w", err)
	}

	var text string
	for _, block := range payload.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			text = strings.TrimSpace(block.Text)
			break
		}
	}
	if text == "" {
		return Result{}, &Failure{Class: ClassProvider, Detail: "messages response missing text content"}
	}
	return Result{
		Raw:   normalize.Text(text),
		Model: payload.Model,
		Usage: Usage{
			PromptTokens:     payload.Usage.InputTokens,
			CompletionTokens: payload.Usage.OutputTokens,
			TotalTokens:      payload.Usage.InputTokens + payload.Usage.OutputTokens,
		},
	}, nil
}
