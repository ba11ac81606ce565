package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"codeberg.org/snonux/meaningbot/internal/cli"
	"codeberg.org/snonux/meaningbot/internal/engine"
	"codeberg.org/snonux/meaningbot/internal/fallback"
	"codeberg.org/snonux/meaningbot/internal/persist"
)

// NewBackend opens the configured storage backend
func NewBackend(s cli.Settings) (persist.Backend, error) {
	switch s.Backend {
	case "", "json":
		return persist.NewJSONBackend(s.DictionaryPath, s.DistancesPath), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(s.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return persist.NewSQLiteBackend(s.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (use json or sqlite)", s.Backend)
	}
}

// NewFallback builds the configured fallback translator. It returns nil
// when the provider is "none" or no provider is usable.
func NewFallback(ctx context.Context, s cli.Settings, logger *zap.Logger) (engine.Fallback, error) {
	breaker := fallback.BreakerConfig{
		MaxFailures: s.BreakerMaxFailures,
		OpenTimeout: s.BreakerOpenTimeout,
	}

	var names []string
	switch s.Provider {
	case "none":
		return nil, nil
	case "gemini", "openai", "static":
		names = []string{s.Provider}
	case "chain":
		if s.StaticFile != "" {
			names = append(names, "static")
		}
		names = append(names, "gemini", "openai")
	default:
		return nil, fmt.Errorf("unknown fallback provider %q (use gemini, openai, static, chain or none)", s.Provider)
	}

	var providers []fallback.Provider
	for _, name := range names {
		p, err := newProvider(ctx, name, s)
		if err != nil {
			logger.Warn("fallback provider unavailable", zap.String("provider", name), zap.Error(err))
			continue
		}
		providers = append(providers, fallback.NewBreaker(p, breaker, logger))
	}

	switch len(providers) {
	case 0:
		logger.Warn("no fallback translator configured, unknown messages will not be translated")
		return nil, nil
	case 1:
		return fallback.NewAdapter(providers[0], s.FallbackTimeout, logger), nil
	default:
		chain := fallback.NewChain(s.Languages, providers...)
		return fallback.NewAdapter(chain, s.FallbackTimeout, logger), nil
	}
}

func newProvider(ctx context.Context, name string, s cli.Settings) (fallback.Provider, error) {
	switch name {
	case "gemini":
		return fallback.NewGeminiProvider(ctx, fallback.GeminiConfig{
			APIKey:    s.GeminiKey,
			Model:     s.GeminiModel,
			Languages: s.Languages,
		})
	case "openai":
		return fallback.NewOpenAIProvider(fallback.OpenAIConfig{
			APIKey:    s.OpenAIKey,
			Model:     s.OpenAIModel,
			BaseURL:   s.OpenAIBaseURL,
			Languages: s.Languages,
		})
	case "static":
		if s.StaticFile == "" {
			return nil, fmt.Errorf("fallback.static_file is not set")
		}
		return fallback.LoadStatic(s.StaticFile)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// EngineConfig maps the settings to the engine tuning
func EngineConfig(s cli.Settings) engine.Config {
	cfg := engine.DefaultConfig()
	if s.HalfLife > 0 {
		cfg.HalfLife = s.HalfLife
	}
	if s.Window > 0 {
		cfg.WindowCapacity = s.Window
	}
	if s.MinSimilarity >= 0 {
		cfg.MinSimilarity = s.MinSimilarity
	}
	cfg.Seed = s.Seed
	return cfg
}
