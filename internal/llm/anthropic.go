package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"songbird/internal/core"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

type AnthropicClient struct {
	config *core.LLMConfig
	logger *zap.Logger
	client *anthropic.Client
}

func NewAnthropicClient(config *core.LLMConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	var opts []option.RequestOption
	opts = append(opts, option.WithAPIKey(config.APIKey))

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicClient{
		config: config,
		logger: logger,
		client: &client,
	}, nil
}

func (a *AnthropicClient) Suggest(ctx context.Context, mood string, maxTitles int) ([]string, error) {
	model := a.config.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokensSuggest,
		System: []anthropic.TextBlockParam{{
			Text: fmt.Sprintf(suggestionPrompt, maxTitles),
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(mood)),
		},
		Temperature: anthropic.Float(defaultTemperature),
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic API call failed: %w", err)
	}

	if len(message.Content) == 0 {
		return nil, fmt.Errorf("no response from Anthropic")
	}

	content := message.Content[0].Text

	var response suggestionResponse
	if err := json.Unmarshal([]byte(content), &response); err != nil {
		a.logger.Error("Failed to parse Anthropic response", zap.Error(err), zap.String("content", content))
		return nil, fmt.Errorf("failed to parse Anthropic response: %w", err)
	}

	titles := titlesFromResponse(response)
	a.logger.Debug("Anthropic suggestions generated",
		zap.String("mood", mood),
		zap.Int("count", len(titles)))

	return titles, nil
}
