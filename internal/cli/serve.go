package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/venturemind/mentord/internal/config"
	"github.com/venturemind/mentord/internal/logger"
	"github.com/venturemind/mentord/internal/metrics"
	"github.com/venturemind/mentord/internal/provider"
	"github.com/venturemind/mentord/internal/server"
	"github.com/venturemind/mentord/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API server",
	Long: `Start the HTTP chat API server. The server runs until it receives
SIGINT or SIGTERM, then drains in-flight requests and clears the
session registry.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	result := config.NewValidator().Validate(cfg)
	for _, warning := range result.Warnings {
		log.Warn().Msg(warning)
	}
	if !result.Valid() {
		return fmt.Errorf("invalid configuration: %s", strings.Join(result.Errors, "; "))
	}

	ctx := context.Background()

	p, err := buildProvider(ctx, cfg.Provider)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	log.Info().Str("backend", p.Name()).Str("model", cfg.Provider.Model).Msg("Provider configured")

	registry := session.NewRegistry(p, log.GetZerolog())
	m := metrics.New()

	srv, err := server.New(server.Options{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		RequestTimeout:     cfg.Server.RequestTimeout,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	}, registry, m, log.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sc:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping server")
		return err
	}

	return nil
}

// buildProvider constructs the configured model backend.
func buildProvider(ctx context.Context, cfg config.ProviderConfig) (provider.Provider, error) {
	switch cfg.Backend {
	case "gemini":
		return provider.NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cfg.MaxOutputTokens)
	case "openai":
		return provider.NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.MaxOutputTokens), nil
	case "anthropic":
		return provider.NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.MaxOutputTokens), nil
	default:
		return nil, fmt.Errorf("unknown provider backend: %q", cfg.Backend)
	}
}
