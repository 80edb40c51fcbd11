package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Env variable names for provider credentials, checked per backend.
const (
	envGeminiKey    = "GEMINI_API_KEY"
	envOpenAIKey    = "OPENAI_API_KEY"
	envAnthropicKey = "ANTHROPIC_API_KEY"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. An empty path means defaults plus
// environment only.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load loads the configuration: defaults, then the optional config file,
// then MENTORD_* environment overrides, then the provider credential from
// its conventional environment variable.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("MENTORD")
	v.AutomaticEnv()

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err == nil {
			v.SetConfigFile(l.configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if s := v.GetString("SERVER_PORT"); s != "" {
		cfg.Server.Port = v.GetInt("SERVER_PORT")
	}
	if s := v.GetString("PROVIDER_BACKEND"); s != "" {
		cfg.Provider.Backend = s
	}
	if s := v.GetString("PROVIDER_MODEL"); s != "" {
		cfg.Provider.Model = s
	}

	// The credential never lives in the config file; prefer the
	// backend-specific environment variable.
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = credentialFromEnv(cfg.Provider.Backend)
	}

	return cfg, nil
}

func credentialFromEnv(backend string) string {
	switch backend {
	case "openai":
		return os.Getenv(envOpenAIKey)
	case "anthropic":
		return os.Getenv(envAnthropicKey)
	default:
		return os.Getenv(envGeminiKey)
	}
}
