// Package llm is the adapter to the generative text service.
//
// Three backends are supported: the Gemini REST API ("google"), the official
// Gemini SDK ("genai") and OpenRouter ("openrouter"). All of them satisfy
// Provider; WithRetry adds bounded retries for transient failures.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns a human-readable provider name (e.g., "genai/gemini-2.5-flash").
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // 0 = provider default
	Temperature float64 // 0.0-2.0
	Model       string  // per-request override
	Format      string  // "json" for structured output
	System      string  // system instruction
	Search      bool    // ground the answer with web search
}

// Config holds provider configuration.
type Config struct {
	Provider string        // "google", "genai", "openrouter"
	Model    string        // e.g. "gemini-2.5-flash", "openai/gpt-4o-mini"
	APIKey   string        // empty = read from env
	BaseURL  string        // optional endpoint override
	Timeout  time.Duration // per-request transport timeout, 0 = none
}

// providers lists the accepted provider names.
var providers = []string{"google", "genai", "openrouter"}

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	name := strings.ToLower(cfg.Provider)
	switch name {
	case "google", "genai":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("%s provider requires an API key (llm.api_key, GEMINI_API_KEY or GOOGLE_API_KEY)", name)
		}
		model := firstNonEmpty(cfg.Model, DefaultModel)
		if name == "genai" {
			return newGenAIProvider(key, model, cfg.BaseURL, cfg.Timeout)
		}
		return &googleProvider{
			apiKey:  key,
			model:   model,
			baseURL: firstNonEmpty(cfg.BaseURL, "https://generativelanguage.googleapis.com/v1beta"),
			client:  newHTTPClient(cfg.Timeout),
		}, nil

	case "openrouter":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENROUTER_API_KEY"))
		if key == "" {
			return nil, fmt.Errorf("openrouter provider requires an API key (llm.api_key or OPENROUTER_API_KEY)")
		}
		return &openrouterProvider{
			apiKey:  key,
			model:   firstNonEmpty(cfg.Model, "google/"+DefaultModel),
			baseURL: firstNonEmpty(cfg.BaseURL, "https://openrouter.ai/api/v1"),
			client:  newHTTPClient(cfg.Timeout),
		}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: %s)", cfg.Provider, strings.Join(providers, ", "))
	}
}

// ParseLLMFlag parses a "provider/model" value into a Config.
// Examples: "genai/gemini-2.5-flash", "openrouter/openai/gpt-4o-mini".
func ParseLLMFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{Provider: "genai", Model: DefaultModel}, nil
	}

	parts := strings.SplitN(flag, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return Config{}, fmt.Errorf("invalid llm value %q: expected provider/model (e.g., genai/%s)", flag, DefaultModel)
	}

	provider := strings.ToLower(parts[0])
	for _, p := range providers {
		if p == provider {
			return Config{Provider: provider, Model: parts[1]}, nil
		}
	}
	return Config{}, fmt.Errorf("unknown provider %q in llm value (supported: %s)", provider, strings.Join(providers, ", "))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
