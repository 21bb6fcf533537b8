package adapter

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/louisbranch/undertone/internal/game/normalize"
)

// OpenAIConfig configures the OpenAI chat-completions invoker.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

const defaultOpenAIModel = "gpt-4o-mini"

type openAIInvoker struct {
	client openai.Client
	model  string
}

// NewOpenAIInvoker builds an invoker backed by the OpenAI API.
func NewOpenAIInvoker(cfg OpenAIConfig) Invoker {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openAIInvoker{client: openai.NewClient(opts...), model: model}
}

func (o *openAIInvoker) Invoke(ctx context.Context, promptText string) (Result, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(promptText),
		},
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			requestID := ""
			if apiErr.Response != nil {
				requestID = apiErr.Response.Header.Get("x-request-id")
			}
			return Result{}, &Failure{
				Class:      ClassProvider,
				Detail:     apiErr.Message,
				StatusCode: apiErr.StatusCode,
				RequestID:  requestID,
			}
		}
		return Result{}, err
	}
	if len(completion.Choices) == 0 {
		return Result{}, &Failure{Class: ClassProvider, Detail: "completion has no choices"}
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return Result{}, &Failure{Class: ClassProvider, Detail: "completion text is empty"}
	}
	return Result{
		Raw:   normalize.Text(text),
		Model: completion.Model,
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}, nil
}
