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

// GoogleConfig configures the Gemini generateContent invoker.
type GoogleConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

const (
	defaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGoogleModel   = "gemini-2.5-pro"
)

type googleInvoker struct {
	cfg GoogleConfig
}

// NewGoogleInvoker builds an invoker backed by the Gemini API.
func NewGoogleInvoker(cfg GoogleConfig) Invoker {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultGoogleBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultGoogleModel
	}
	return &googleInvoker{cfg: cfg}
}

func (g *googleInvoker) Invoke(ctx context.Context, promptText string) (Result, error) {
	apiKey := strings.TrimSpace(g.cfg.APIKey)
	if apiKey == "" {
		return Result{}, &Failure{Class: ClassPrecondition, Detail: "google api key is required"}
	}
	if strings.TrimSpace(promptText) == "" {
		return Result{}, &Failure{Class: ClassPrecondition, Detail: "prompt is required"}
	}

	requestBody, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": promptText}}},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(g.cfg.BaseURL, "/"), g.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return Result{}, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	res, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("generate request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return Result{}, fmt.Errorf("read generate error body: %w", err)
		}
		return Result{}, &Failure{
			Class:      ClassProvider,
			Detail:     strings.TrimSpace(string(body)),
			StatusCode: res.StatusCode,
		}
	}

	var payload struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int64 `json:"promptTokenCount"`
			CandidatesTokenCount int64 `json:"candidatesTokenCount"`
			TotalTokenCount      int64 `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode generate response: %w", err)
	}

	var text string
	for _, candidate := range payload.Candidates {
		for _, part := range candidate.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				text = strings.TrimSpace(part.Text)
				break
			}
		}
		if text != "" {
			break
		}
	}
	if text == "" {
		return Result{}, &Failure{Class: ClassProvider, Detail: "generate response missing candidate text"}
	}
	return Result{
		Raw:   normalize.Text(text),
		Model: g.cfg.Model,
		Usage: Usage{
			PromptTokens:     payload.UsageMetadata.PromptTokenCount,
			CompletionTokens: payload.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      payload.UsageMetadata.TotalTokenCount,
		},
	}, nil
}
