package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ppiankov/surveylens/internal/model"
)

// AnthropicMessager is the slice of the SDK client the narrator needs
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicClientCreator builds a messager for an API key, an optional base
// URL and an optional HTTP client
type AnthropicClientCreator func(apiKey, baseURL string, client *http.Client) AnthropicMessager

func defaultAnthropicCreator(apiKey, baseURL string, client *http.Client) AnthropicMessager {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if client != nil {
		opts = append(opts, option.WithHTTPClient(client))
	}
	c := anthropic.NewClient(opts...)
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// AnthropicNarrator implements Narrator with the Anthropic Messages API
type AnthropicNarrator struct {
	messages AnthropicMessager
	config   Config
}

// NewAnthropicNarrator creates a narrator backed by Anthropic
func NewAnthropicNarrator(config Config, client *http.Client) (*AnthropicNarrator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	return &AnthropicNarrator{
		messages: newAnthropicClient(config.APIKey, config.BaseURL, client),
		config:   config,
	}, nil
}

// Name returns the provider name
func (p *AnthropicNarrator) Name() string {
	return "anthropic"
}

// Narrate asks Claude for a JSON comparison
func (p *AnthropicNarrator) Narrate(ctx context.Context, req model.ComparisonRequest) (*Response, error) {
	modelName := anthropic.Model(p.config.Model)
	if modelName == "" {
		modelName = anthropic.ModelClaudeSonnet4_20250514
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

	resp, err := p.messages.New(ctxWithTimeout, anthropic.MessageNewParams{
		Model:       modelName,
		MaxTokens:   int64(maxTokens),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req)))},
		Temperature: anthropic.Float(0.2),
	})
	if err != nil {
		svcErr := &model.ServiceError{Service: "narrative", Endpoint: "anthropic", Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			svcErr.StatusCode = apiErr.StatusCode
		}
		return nil, svcErr
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Response{
		Raw:        []byte(strings.TrimSpace(sb.String())),
		Model:      string(resp.Model),
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}, nil
}
