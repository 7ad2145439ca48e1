package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hurttlocker/gremio/internal/batch"
	"github.com/hurttlocker/gremio/internal/config"
	"github.com/hurttlocker/gremio/internal/ingest"
	"github.com/hurttlocker/gremio/internal/investigate"
	"github.com/hurttlocker/gremio/internal/llm"
	"github.com/hurttlocker/gremio/internal/store"
)

// app is the wired set of components one command works with.
type app struct {
	cfg      config.ResolvedConfig
	backend  store.Backend
	in       *ingest.Ingester
	svc      *investigate.Service
	pipeline *batch.Pipeline
	registry *prometheus.Registry
}

// providerFactory builds the model provider. Tests replace it.
var providerFactory = newProvider

func resolveOptions() config.ResolveOptions {
	return config.ResolveOptions{
		ConfigPath:  configPath,
		CLILLM:      llmFlag,
		CLIDBPath:   dbPathFlag,
		CLIStore:    storeFlag,
		CLICooldown: cooldownFlag,
	}
}

// openApp resolves the config, opens the store and loads the entity view.
// With withModel the model provider is built as well; commands that only
// read or delete records skip it so they work without an API key.
func openApp(ctx context.Context, withModel bool) (*app, error) {
	log := appLogger()
	cfg, err := config.ResolveConfig(resolveOptions())
	if err != nil {
		return nil, err
	}
	cooldown, _ := cfg.Cooldown()

	backend, err := store.Open(store.OptionsFromConfig(cfg, log))
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Value, err)
	}

	a := &app{cfg: cfg, backend: backend, registry: prometheus.NewRegistry()}
	a.pipeline = batch.NewPipeline(log, batch.NewMetrics(a.registry))
	a.pipeline.Cooldown = cooldown

	if withModel {
		provider, err := providerFactory(ctx, cfg, backend)
		if err != nil {
			backend.Close()
			return nil, err
		}
		a.svc = investigate.New(provider, nil, log)
	}

	a.in = ingest.New(ingest.Options{
		View:     store.NewView(backend, log),
		Configs:  backend,
		Service:  a.svc,
		Pipeline: a.pipeline,
		Logger:   log,
	})
	if err := a.in.LoadAll(ctx); err != nil {
		backend.Close()
		return nil, fmt.Errorf("loading unions: %w", err)
	}
	return a, nil
}

func (a *app) Close() error {
	return a.backend.Close()
}

// newProvider builds the configured provider wrapped with retries. The key
// comes from the local config or environment; for Google models the key
// stored in the application config is the fallback.
func newProvider(ctx context.Context, cfg config.ResolvedConfig, configs store.ConfigStore) (llm.Provider, error) {
	llmCfg, err := llm.ParseLLMFlag(cfg.LLMProvider.Value)
	if err != nil {
		return nil, err
	}
	llmCfg.APIKey = cfg.APIKeyForProvider(cfg.LLMProvider.Value).Value
	if llmCfg.APIKey == "" && llmCfg.Provider != "openrouter" {
		if stored, err := configs.GetAppConfig(ctx); err == nil {
			llmCfg.APIKey = strings.TrimSpace(stored.GeminiAPIKey)
		}
	}
	if llmCfg.Timeout, err = cfg.Timeout(); err != nil {
		return nil, err
	}
	retries, err := cfg.MaxRetries()
	if err != nil {
		return nil, err
	}

	p, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, err
	}
	appLogger().Debug("model provider ready", zap.String("provider", p.Name()), zap.Int("max_retries", retries))
	return llm.WithRetry(p, llm.RetryConfig{MaxRetries: retries, Logger: appLogger()}), nil
}
