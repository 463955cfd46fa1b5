package narrative

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ppiankov/surveylens/internal/model"
)

// NewNarrator creates a narrator based on configuration. Every provider
// sends its requests through client, so proxy and TLS settings apply.
// A nil narrator with a nil error means narratives are disabled.
func NewNarrator(config Config, client *http.Client, limiter Waiter) (Narrator, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "remote", "api":
		return NewRemoteNarrator(config, client, limiter)

	case "openai":
		return NewOpenAINarrator(config, client)

	case "anthropic", "claude":
		return NewAnthropicNarrator(config, client)

	case "ollama":
		return NewOllamaNarrator(config, client)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown narrative provider: %s (supported: remote, openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model.NarrativeConfig to narrative.Config.
// The remote provider defaults to the survey API base URL.
func ConfigFromModel(nc model.NarrativeConfig, apiBaseURL string) Config {
	cfg := Config{
		Provider:  nc.Provider,
		Model:     nc.Model,
		APIKey:    nc.APIKey,
		BaseURL:   nc.BaseURL,
		Timeout:   nc.Timeout,
		MaxTokens: nc.MaxTokens,
	}
	if cfg.BaseURL == "" && strings.EqualFold(cfg.Provider, "remote") {
		cfg.BaseURL = apiBaseURL
	}
	return cfg
}
