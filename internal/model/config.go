package model

import "time"

// Config is the complete SurveyLens configuration.
// Values come from flags, SURVEYLENS_* env vars, the config file and these defaults.
type Config struct {
	API          APIConfig         `yaml:"api" mapstructure:"api"`
	Source       SourceConfig      `yaml:"source" mapstructure:"source"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Narrative    NarrativeConfig   `yaml:"narrative" mapstructure:"narrative"`
	Output       OutputConfig      `yaml:"output" mapstructure:"output"`
	Server       ServerConfig      `yaml:"server" mapstructure:"server"`
	Telemetry    TelemetryConfig   `yaml:"telemetry" mapstructure:"telemetry"`
}

// APIConfig describes how to reach the survey API
type APIConfig struct {
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS  bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`

	// UseCompareEndpoint fetches records through /compare with server-side
	// filtering; otherwise /responses is read and filtered locally.
	UseCompareEndpoint bool `yaml:"use_compare_endpoint" mapstructure:"use_compare_endpoint"`
}

// SourceConfig selects where survey data is read from
type SourceConfig struct {
	Kind       string `yaml:"kind" mapstructure:"kind"` // "http" or "sqlite"
	SQLitePath string `yaml:"sqlite_path,omitempty" mapstructure:"sqlite_path"`
}

// CacheConfig controls caching of catalog endpoints (never responses)
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// RateLimitConfig bounds outbound request rate per host
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig sizes the batch worker pool
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// NarrativeConfig selects the narrative backend
type NarrativeConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // remote, openai, anthropic, ollama, "" (disabled)
	Model     string `yaml:"model,omitempty" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OutputConfig controls rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// ServerConfig configures `surveylens serve`
type ServerConfig struct {
	Addr       string        `yaml:"addr" mapstructure:"addr"`
	SessionTTL time.Duration `yaml:"session_ttl" mapstructure:"session_ttl"`
}

// TelemetryConfig configures OTLP trace export
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Headers     string `yaml:"headers,omitempty" mapstructure:"headers"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// Enabled reports whether traces should be exported
func (t TelemetryConfig) Enabled() bool {
	return t.Endpoint != ""
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:            "http://127.0.0.1:8000",
			Timeout:            30 * time.Second,
			UserAgent:          "SurveyLens/0.1",
			MaxBodyBytes:       10_000_000,
			UseCompareEndpoint: true,
		},
		Source: SourceConfig{
			Kind: "http",
		},
		Cache: CacheConfig{
			Enabled:   true,
			MemoryTTL: 5 * time.Minute,
			Dir:       ".surveylens-cache",
			DiskTTL:   1 * time.Hour,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         10,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Narrative: NarrativeConfig{
			Provider:  "",
			Timeout:   60,
			MaxTokens: 1500,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
		Server: ServerConfig{
			Addr:       ":8080",
			SessionTTL: 30 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "surveylens",
		},
	}
}
