package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/surveylens/internal/model"
)

// defaultOllamaBaseURL is Ollama's OpenAI-compatible endpoint
const defaultOllamaBaseURL = "http://localhost:11434/v1"

// OpenAINarrator implements Narrator with the Chat Completions API.
// It also serves Ollama through its OpenAI-compatible endpoint.
type OpenAINarrator struct {
	client   *openai.Client
	config   Config
	provider string
}

// NewOpenAINarrator creates a narrator backed by OpenAI.
// A nil client falls back to the SDK's default.
func NewOpenAINarrator(config Config, client *http.Client) (*OpenAINarrator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if client != nil {
		clientConfig.HTTPClient = client
	}

	return &OpenAINarrator{
		client:   openai.NewClientWithConfig(clientConfig),
		config:   config,
		provider: "openai",
	}, nil
}

// NewOllamaNarrator creates a narrator backed by a local Ollama server
func NewOllamaNarrator(config Config, client *http.Client) (*OpenAINarrator, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if config.Model == "" {
		config.Model = "llama3.1"
	}

	// Ollama ignores the key but the client requires one
	clientConfig := openai.DefaultConfig("ollama")
	clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	if client != nil {
		clientConfig.HTTPClient = client
	}

	return &OpenAINarrator{
		client:   openai.NewClientWithConfig(clientConfig),
		config:   config,
		provider: "ollama",
	}, nil
}

// Name returns the provider name
func (p *OpenAINarrator) Name() string {
	return p.provider
}

// Narrate asks the model for a JSON comparison
func (p *OpenAINarrator) Narrate(ctx context.Context, req model.ComparisonRequest) (*Response, error) {
	modelName := p.config.Model
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1500
	}

	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	}
	if p.provider == "openai" {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, chatReq)
	if err != nil {
		svcErr := &model.ServiceError{Service: "narrative", Endpoint: p.provider, Err: err}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			svcErr.StatusCode = apiErr.HTTPStatusCode
		}
		return nil, svcErr
	}

	if len(resp.Choices) == 0 {
		return nil, &model.ServiceError{Service: "narrative", Endpoint: p.provider, Detail: "no choices in response"}
	}

	return &Response{
		Raw:        []byte(strings.TrimSpace(resp.Choices[0].Message.Content)),
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
