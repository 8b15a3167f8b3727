package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"songbird/internal/core"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
	ollamaTimeout      = 60 * time.Second
)

type OllamaClient struct {
	config     *core.LLMConfig
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
}

type ollamaRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Format  string                 `json:"format,omitempty"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaClient(config *core.LLMConfig, logger *zap.Logger) (*OllamaClient, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	return &OllamaClient{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: ollamaTimeout},
		baseURL:    baseURL,
	}, nil
}

func (o *OllamaClient) Suggest(ctx context.Context, mood string, maxTitles int) ([]string, error) {
	model := o.config.Model
	if model == "" {
		model = defaultOllamaModel
	}

	prompt := fmt.Sprintf(suggestionPrompt, maxTitles) + fmt.Sprintf("\n\nMood: %q", mood)

	reqBody := ollamaRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
		Options: map[string]interface{}{
			"temperature": defaultTemperature,
			"num_predict": maxTokensSuggest,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Ollama API call failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			o.logger.Warn("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama API returned status %d", resp.StatusCode)
	}

	var body ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode Ollama response: %w", err)
	}

	var response suggestionResponse
	if err := json.Unmarshal([]byte(body.Response), &response); err != nil {
		o.logger.Error("Failed to parse Ollama response", zap.Error(err), zap.String("content", body.Response))
		return nil, fmt.Errorf("failed to parse Ollama response: %w", err)
	}

	titles := titlesFromResponse(response)
	o.logger.Debug("Ollama suggestions generated",
		zap.String("mood", mood),
		zap.Int("count", len(titles)))

	return titles, nil
}
