package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/ppiankov/surveylens/internal/model"
)

func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	cfgFile, apiURL, sqlitePath, verbose = "", "", "", false
	t.Cleanup(viper.Reset)
}

func TestLoadConfig_FileEnvAndFlags(t *testing.T) {
	resetConfig(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "api:\n  base_url: http://survey.local\n  timeout: 5s\nnarrative:\n  provider: openai\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgFile = path
	t.Setenv("SURVEYLENS_CACHE_ENABLED", "false")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	initConfig()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.BaseURL != "http://survey.local" || cfg.API.Timeout != 5*time.Second {
		t.Errorf("config file not applied: %+v", cfg.API)
	}
	if cfg.Cache.Enabled {
		t.Error("SURVEYLENS_CACHE_ENABLED=false not applied")
	}
	if cfg.Narrative.APIKey != "sk-test" {
		t.Errorf("expected OPENAI_API_KEY fallback, got %q", cfg.Narrative.APIKey)
	}
	if cfg.Concurrency.Workers != model.DefaultConfig().Concurrency.Workers {
		t.Errorf("defaults lost for unset keys: %+v", cfg.Concurrency)
	}

	apiURL, sqlitePath = "http://override", "survey.db"
	cfg, err = loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.BaseURL != "http://override" || cfg.Source.Kind != "sqlite" || cfg.Source.SQLitePath != "survey.db" {
		t.Errorf("global flags not applied: %+v %+v", cfg.API, cfg.Source)
	}
}

func TestApplyProviderEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")

	nc := model.NarrativeConfig{Provider: "Claude"}
	applyProviderEnv(&nc)
	if nc.APIKey != "sk-ant" {
		t.Errorf("expected anthropic key, got %q", nc.APIKey)
	}

	nc = model.NarrativeConfig{Provider: "anthropic", APIKey: "explicit"}
	applyProviderEnv(&nc)
	if nc.APIKey != "explicit" {
		t.Errorf("explicit key overwritten: %q", nc.APIKey)
	}

	nc = model.NarrativeConfig{Provider: "ollama"}
	applyProviderEnv(&nc)
	if nc.BaseURL != "http://ollama:11434" {
		t.Errorf("expected ollama base URL, got %q", nc.BaseURL)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"# SurveyLens Configuration File", "base_url: http://127.0.0.1:8000", "export OPENAI_API_KEY"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %q in written config", want)
		}
	}
	if err := writeDefaultConfig(path); err == nil {
		t.Error("expected an error when the file already exists")
	}
}

func TestParseOrgIDs(t *testing.T) {
	ids, err := parseOrgIDs([]string{"3", "7"})
	if err != nil || len(ids) != 2 || ids[0] != 3 || ids[1] != 7 {
		t.Errorf("unexpected %v %v", ids, err)
	}
	for _, bad := range []string{"x", "0", "-2", "1.5"} {
		if _, err := parseOrgIDs([]string{bad}); !errors.Is(err, model.ErrInvalidInput) {
			t.Errorf("%q: expected ErrInvalidInput, got %v", bad, err)
		}
	}
}

func TestScopeRequest(t *testing.T) {
	cmd := compareCmd
	t.Cleanup(func() {
		clauseID, startDate, endDate = 0, "", ""
		_ = cmd.Flags().Set("clause", "0")
	})

	if err := cmd.Flags().Set("clause", "2"); err != nil {
		t.Fatal(err)
	}
	startDate, endDate = "2024-01-01", "2024-06-30"

	req, err := scopeRequest(cmd)
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	if req.ClauseID == nil || *req.ClauseID != 2 || req.StartDate != "2024-01-01" || req.EndDate != "2024-06-30" {
		t.Errorf("unexpected request %+v", req)
	}

	endDate = "30/06/2024"
	if _, err := scopeRequest(cmd); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("expected a date error, got %v", err)
	}
}

func TestLoadConfig_OptionalKeysFromEnv(t *testing.T) {
	resetConfig(t)
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	t.Setenv("SURVEYLENS_TELEMETRY_ENDPOINT", "http://collector:4318")
	t.Setenv("SURVEYLENS_NARRATIVE_API_KEY", "k")
	initConfig()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Telemetry.Enabled() || cfg.Telemetry.Endpoint != "http://collector:4318" {
		t.Errorf("telemetry endpoint not read from env: %+v", cfg.Telemetry)
	}
	if cfg.Narrative.APIKey != "k" {
		t.Errorf("api key not read from env")
	}
}
