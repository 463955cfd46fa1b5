package narrative

import (
	"context"

	"github.com/ppiankov/surveylens/internal/model"
)

// Narrator produces a narrative comparison of two organizations
type Narrator interface {
	// Name returns the backend name
	Name() string

	// Narrate returns the backend's raw answer; pass it through Validate
	// before use. Failures wrap model.ErrServiceUnavailable.
	Narrate(ctx context.Context, req model.ComparisonRequest) (*Response, error)
}

// SelfSourcing is implemented by narrators that gather their own evidence
// from the survey API. They only need the organization ids and scope of the
// request, so they can run before local records are available.
type SelfSourcing interface {
	SelfSourcing() bool
}

// IsSelfSourcing reports whether n gathers its own evidence
func IsSelfSourcing(n Narrator) bool {
	s, ok := n.(SelfSourcing)
	return ok && s.SelfSourcing()
}

// Response is a backend's unvalidated answer
type Response struct {
	// Raw is the body (remote) or completion text (LLM)
	Raw []byte

	// Model that generated the response, if known
	Model string

	// TokensUsed tracks token consumption for LLM backends
	TokensUsed int
}

// Config holds narrative backend configuration
type Config struct {
	// Provider name: "remote", "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL of the survey API (remote) or a custom LLM endpoint
	BaseURL string

	// Timeout for a single narrative call
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   60,
		MaxTokens: 1500,
	}
}
