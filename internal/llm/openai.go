package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"songbird/internal/core"
)

const (
	defaultTemperature = 0.7
	maxTokensSuggest   = 500
	defaultOpenAIModel = "gpt-4o-mini"
)

type OpenAIClient struct {
	config *core.LLMConfig
	logger *zap.Logger
	client *openai.Client
}

func NewOpenAIClient(config *core.LLMConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	var opts []option.RequestOption
	opts = append(opts, option.WithAPIKey(config.APIKey))

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIClient{
		config: config,
		logger: logger,
		client: &client,
	}, nil
}

func (o *OpenAIClient) Suggest(ctx context.Context, mood string, maxTitles int) ([]string, error) {
	if strings.TrimSpace(mood) == "" {
		return nil, fmt.Errorf("empty mood provided")
	}

	o.logger.Debug("Calling OpenAI for song suggestions",
		zap.String("mood", mood),
		zap.String("model", string(o.getModel())))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(suggestionPrompt, maxTitles)),
			openai.UserMessage(mood),
		},
		Model:       o.getModel(),
		Temperature: openai.Float(defaultTemperature),
		MaxTokens:   openai.Int(maxTokensSuggest),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content

	var response suggestionResponse
	if err := json.Unmarshal([]byte(content), &response); err != nil {
		o.logger.Error("Failed to parse OpenAI response",
			zap.Error(err),
			zap.String("content", content))
		return nil, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}

	titles := titlesFromResponse(response)
	o.logger.Debug("OpenAI suggestions generated",
		zap.String("mood", mood),
		zap.Int("count", len(titles)))

	return titles, nil
}

func (o *OpenAIClient) getModel() shared.ChatModel {
	if o.config.Model != "" {
		return shared.ChatModel(o.config.Model)
	}
	return defaultOpenAIModel
}
