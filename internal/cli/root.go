package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/surveylens/internal/model"
	"github.com/ppiankov/surveylens/internal/telemetry"
)

// version is overridden at build time with -ldflags "-X ...cli.version=..."
var version = "0.1.0"

var (
	cfgFile    string
	verbose    bool
	jsonLogs   bool
	apiURL     string
	sqlitePath string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "surveylens",
	Short: "SurveyLens - compare survey responses across organizations",
	Long: `SurveyLens compares how organizations answered a compliance survey.

It reads organizations, clauses, questions and responses from the survey
API (or a SQLite export), normalizes the answers into Yes, No,
NotApplicable, Other and NoResponse, and produces:

- a per-question pivot of every organization's answer (line charts)
- a per-organization tally of answer categories (bar charts)
- optionally, a generated narrative of similarities and differences
  between two organizations

Counts never depend on the narrative.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of SurveyLens.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("surveylens v%s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.surveylens/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "survey API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "read survey data from this SQLite file instead of the API")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	registerDefaults("", defaultsMap())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".surveylens"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// SURVEYLENS_API_BASE_URL sets api.base_url, and so on
	viper.SetEnvPrefix("SURVEYLENS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range optionalKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// optionalKeys are omitted from the marshaled defaults when empty, so
// their environment variables are bound explicitly
var optionalKeys = []string{
	"api.http_proxy",
	"api.https_proxy",
	"api.no_proxy",
	"source.sqlite_path",
	"narrative.model",
	"narrative.api_key",
	"narrative.base_url",
	"telemetry.endpoint",
	"telemetry.headers",
}

// defaultsMap flattens the built-in defaults so that environment
// variables resolve for every key, even without a config file
func defaultsMap() map[string]any {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func registerDefaults(prefix string, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		viper.SetDefault(prefix, v)
		return
	}
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		registerDefaults(key, val)
	}
}

// loadConfig merges defaults, config file, environment and global flags.
// Provider keys fall back to the conventional OPENAI_API_KEY,
// ANTHROPIC_API_KEY and OLLAMA_BASE_URL variables.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if sqlitePath != "" {
		cfg.Source.Kind = "sqlite"
		cfg.Source.SQLitePath = sqlitePath
	}
	cfg.Output.Verbose = cfg.Output.Verbose || verbose

	applyProviderEnv(&cfg.Narrative)
	return cfg, nil
}

func applyProviderEnv(nc *model.NarrativeConfig) {
	switch strings.ToLower(nc.Provider) {
	case "openai":
		if nc.APIKey == "" {
			nc.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case "anthropic", "claude":
		if nc.APIKey == "" {
			nc.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case "ollama":
		if nc.BaseURL == "" {
			nc.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
	}
}

// startRuntime loads configuration, starts telemetry and builds the logger.
// The returned function flushes telemetry and must be deferred.
func startRuntime(ctx context.Context) (*model.Config, *slog.Logger, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("setup telemetry: %w", err)
	}

	logger := telemetry.NewLogger(telemetry.LogOptions{
		Writer:      os.Stderr,
		Verbose:     cfg.Output.Verbose,
		JSON:        jsonLogs,
		Export:      tel != nil,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	slog.SetDefault(logger)

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry shutdown: %v\n", err)
		}
	}
	return cfg, logger, shutdown, nil
}
