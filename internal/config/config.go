// Package config defines and loads the service configuration.
package config

import (
	"time"

	"github.com/venturemind/mentord/internal/logger"
)

// Config is the root configuration for mentord
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`
	Logging  logger.Config  `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`

	// AllowedOrigins is the CORS allow-list for browser clients.
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`

	// RequestTimeout bounds one provider send.
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`

	// RateLimitPerMinute is the per-IP budget for /api/chat. 0 disables.
	RateLimitPerMinute int `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// ProviderConfig selects and configures the generative-model backend
type ProviderConfig struct {
	// Backend is one of "gemini", "openai", "anthropic".
	Backend string `json:"backend" mapstructure:"backend"`

	// APIKey is normally left empty in the config file and supplied via
	// GEMINI_API_KEY / OPENAI_API_KEY / ANTHROPIC_API_KEY.
	APIKey string `json:"api_key" mapstructure:"api_key"`

	Model           string `json:"model" mapstructure:"model"`
	MaxOutputTokens int    `json:"max_output_tokens" mapstructure:"max_output_tokens"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
			AllowedOrigins: []string{
				"http://localhost:5173",
				"https://localhost:5173",
			},
			RequestTimeout:     30 * time.Second,
			RateLimitPerMinute: 100,
		},
		Provider: ProviderConfig{
			Backend:         "gemini",
			Model:           "gemini-1.5-flash",
			MaxOutputTokens: 1500,
		},
		Logging: logger.DefaultConfig(),
	}
}
