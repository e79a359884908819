package config

import (
	"fmt"
	"os"
	"time"
)

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`     // "jina" or "openai-compatible"
	Model      string        `mapstructure:"model"`        // Model name/ID
	APIKey     string        `mapstructure:"api_key"`      // API key (can be set directly or via env var)
	APIKeyEnv  string        `mapstructure:"api_key_env"`  // Environment variable name for API key
	BaseURL    string        `mapstructure:"base_url"`     // Base URL for OpenAI-compatible APIs
	BaseURLEnv string        `mapstructure:"base_url_env"` // Environment variable name for base URL
	Dimensions int           `mapstructure:"dimensions"`   // Embedding vector dimensions
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ResolveEnvVars loads APIKey and BaseURL from the named environment variables
// when they are not set directly.
func (c *EmbeddingConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.BaseURLEnv != "" && c.BaseURL == "" {
		c.BaseURL = os.Getenv(c.BaseURLEnv)
	}
}

// Validate checks that the embedding configuration has all required fields.
// Returns an error describing the first validation failure, or nil if valid.
func (c *EmbeddingConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("embedding: model is required")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("embedding: dimensions must be positive")
	}

	switch c.Provider {
	case "jina":
	case "openai-compatible":
		if c.BaseURL == "" {
			return fmt.Errorf("embedding: base_url is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("embedding: unknown provider %q", c.Provider)
	}

	return nil
}
