package narrative

import (
	"testing"

	"github.com/ppiankov/surveylens/internal/model"
)

func TestNewNarrator(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantName string
		wantNil  bool
		wantErr  bool
	}{
		{name: "disabled", config: Config{}, wantNil: true},
		{name: "remote", config: Config{Provider: "remote", BaseURL: "http://api"}, wantName: "remote"},
		{name: "api alias", config: Config{Provider: "API", BaseURL: "http://api"}, wantName: "remote"},
		{name: "openai", config: Config{Provider: "openai", APIKey: "k"}, wantName: "openai"},
		{name: "claude alias", config: Config{Provider: "claude", APIKey: "k"}, wantName: "anthropic"},
		{name: "ollama", config: Config{Provider: "ollama"}, wantName: "ollama"},
		{name: "openai without key", config: Config{Provider: "openai"}, wantErr: true},
		{name: "unknown", config: Config{Provider: "gemini"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewNarrator(tt.config, nil, nil)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got narrator %v", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.wantNil {
				if n != nil {
					t.Errorf("Expected nil narrator, got %s", n.Name())
				}
				return
			}
			if n.Name() != tt.wantName {
				t.Errorf("Expected %s, got %s", tt.wantName, n.Name())
			}
		})
	}
}

func TestConfigFromModel_RemoteDefaultsToAPIBase(t *testing.T) {
	cfg := ConfigFromModel(model.NarrativeConfig{Provider: "remote", Timeout: 30}, "http://survey:8000")
	if cfg.BaseURL != "http://survey:8000" || cfg.Timeout != 30 {
		t.Errorf("Unexpected config %+v", cfg)
	}

	cfg = ConfigFromModel(model.NarrativeConfig{Provider: "openai"}, "http://survey:8000")
	if cfg.BaseURL != "" {
		t.Errorf("Expected empty base URL for openai, got %s", cfg.BaseURL)
	}
}
