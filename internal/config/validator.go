package config

import (
	"fmt"
	"strings"
)

// ValidationResult collects configuration errors and warnings
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the configuration can be used
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the full configuration
func (v *Validator) Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		result.Errors = append(result.Errors, fmt.Sprintf("invalid server port: %d", cfg.Server.Port))
	}
	if cfg.Server.RequestTimeout <= 0 {
		result.Errors = append(result.Errors, "request timeout must be positive")
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		result.Warnings = append(result.Warnings, "no allowed origins configured; browser clients will be blocked")
	}

	switch cfg.Provider.Backend {
	case "gemini", "openai", "anthropic":
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("unknown provider backend: %q", cfg.Provider.Backend))
	}

	if err := v.ValidateAPIKey(cfg.Provider.APIKey, cfg.Provider.Backend); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	if cfg.Provider.Model == "" {
		result.Errors = append(result.Errors, "provider model cannot be empty")
	}
	if cfg.Provider.MaxOutputTokens < 0 {
		result.Errors = append(result.Errors, "max output tokens cannot be negative")
	}

	return result
}

// ValidateAPIKey validates an API key format for the given backend
func (v *Validator) ValidateAPIKey(key string, backend string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty (set it via environment)", backend)
	}

	switch backend {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Gemini API key format (should start with AIza)")
		}
	}

	return nil
}
