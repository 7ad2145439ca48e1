package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultStore      = "sqlite"
	DefaultDBPath     = "~/.gremio/gremio.db"
	DefaultLLM        = "genai/gemini-2.5-flash"
	DefaultMaxRetries = "3"
	DefaultTimeout    = "90s"
	DefaultCooldown   = "2s"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath  string
	CLILLM      string
	CLIDBPath   string
	CLIStore    string
	CLICooldown string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	Store          ResolvedValue `json:"store_backend"`
	DBPath         ResolvedValue `json:"db_path"`
	FirebaseURL    ResolvedValue `json:"firebase_url"`
	FirebaseSecret ResolvedValue `json:"firebase_secret"`

	LLMProvider   ResolvedValue `json:"llm_provider"`
	LLMMaxRetries ResolvedValue `json:"llm_max_retries"`
	LLMTimeout    ResolvedValue `json:"llm_timeout"`

	BatchCooldown ResolvedValue `json:"batch_cooldown"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	Store struct {
		Backend        string `yaml:"backend"`
		DBPath         string `yaml:"db_path"`
		FirebaseURL    string `yaml:"firebase_url"`
		FirebaseSecret string `yaml:"firebase_secret"`
	} `yaml:"store"`
	LLM struct {
		Provider   string `yaml:"provider"`
		APIKey     string `yaml:"api_key"`
		MaxRetries string `yaml:"max_retries"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"llm"`
	Batch struct {
		Cooldown string `yaml:"cooldown"`
	} `yaml:"batch"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gremio", "config.yaml")
}

// ResolveConfig merges built-in defaults, the YAML file, environment and
// CLI flags, in increasing precedence.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}
	apply(&out.Store, DefaultStore, SourceDefault, "built-in default")
	apply(&out.DBPath, DefaultDBPath, SourceDefault, "built-in default")
	apply(&out.LLMProvider, DefaultLLM, SourceDefault, "built-in default")
	apply(&out.LLMMaxRetries, DefaultMaxRetries, SourceDefault, "built-in default")
	apply(&out.LLMTimeout, DefaultTimeout, SourceDefault, "built-in default")
	apply(&out.BatchCooldown, DefaultCooldown, SourceDefault, "built-in default")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.Store, cfg.Store.Backend, SourceConfig, path)
		apply(&out.DBPath, cfg.Store.DBPath, SourceConfig, path)
		apply(&out.FirebaseURL, cfg.Store.FirebaseURL, SourceConfig, path)
		apply(&out.FirebaseSecret, cfg.Store.FirebaseSecret, SourceConfig, path)
		apply(&out.LLMProvider, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMMaxRetries, cfg.LLM.MaxRetries, SourceConfig, path)
		apply(&out.LLMTimeout, cfg.LLM.Timeout, SourceConfig, path)
		apply(&out.BatchCooldown, cfg.Batch.Cooldown, SourceConfig, path)

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			p := providerOf(out.LLMProvider.Value)
			if p == "" {
				p = "default"
			}
			out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.Store, "GREMIO_STORE")
	applyEnv(&out.DBPath, "GREMIO_DB")
	applyEnv(&out.FirebaseURL, "GREMIO_FIREBASE_URL")
	applyEnv(&out.FirebaseSecret, "GREMIO_FIREBASE_SECRET")
	applyEnv(&out.LLMProvider, "GREMIO_LLM")
	applyEnv(&out.LLMMaxRetries, "GREMIO_LLM_MAX_RETRIES")
	applyEnv(&out.LLMTimeout, "GREMIO_LLM_TIMEOUT")
	applyEnv(&out.BatchCooldown, "GREMIO_BATCH_COOLDOWN")

	// GOOGLE_API_KEY is listed first so GEMINI_API_KEY wins when both are set.
	for _, kv := range [][2]string{
		{"OPENROUTER_API_KEY", "openrouter"},
		{"GOOGLE_API_KEY", "google"},
		{"GEMINI_API_KEY", "google"},
	} {
		if v := strings.TrimSpace(os.Getenv(kv[0])); v != "" {
			out.LLMKeys[kv[1]] = ResolvedValue{Value: v, Source: SourceEnv, From: kv[0]}
		}
	}

	apply(&out.LLMProvider, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.Store, opts.CLIStore, SourceCLI, "--store")
	apply(&out.BatchCooldown, opts.CLICooldown, SourceCLI, "--cooldown")

	out.Store.Value = strings.ToLower(out.Store.Value)
	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	return out, out.Validate()
}

// Validate checks values that have a closed set of options or must parse.
func (r ResolvedConfig) Validate() error {
	switch r.Store.Value {
	case "sqlite":
	case "firebase":
		if r.FirebaseURL.Value == "" {
			return fmt.Errorf("store backend firebase requires store.firebase_url or GREMIO_FIREBASE_URL")
		}
	default:
		return fmt.Errorf("unknown store backend %q (from %s): expected sqlite or firebase", r.Store.Value, r.Store.From)
	}
	if _, err := r.Cooldown(); err != nil {
		return err
	}
	if _, err := r.MaxRetries(); err != nil {
		return err
	}
	if _, err := r.Timeout(); err != nil {
		return err
	}
	return nil
}

// Cooldown is the pause between successful batch entities.
func (r ResolvedConfig) Cooldown() (time.Duration, error) {
	return parseDuration(r.BatchCooldown)
}

// Timeout is the per-request transport timeout of the LLM provider.
func (r ResolvedConfig) Timeout() (time.Duration, error) {
	return parseDuration(r.LLMTimeout)
}

// MaxRetries is the retry budget for transient LLM failures.
func (r ResolvedConfig) MaxRetries() (int, error) {
	n, err := strconv.Atoi(r.LLMMaxRetries.Value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid llm max retries %q (from %s)", r.LLMMaxRetries.Value, r.LLMMaxRetries.From)
	}
	return n, nil
}

// APIKeyForProvider returns the key for a provider or "provider/model"
// value. The genai provider shares the google keys.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	candidates := []string{provider}
	if provider == "genai" {
		candidates = append(candidates, "google")
	}
	if provider == "google" {
		candidates = append(candidates, "genai")
	}
	candidates = append(candidates, "default")
	for _, c := range candidates {
		if v, ok := r.LLMKeys[c]; ok && strings.TrimSpace(v.Value) != "" {
			return v
		}
	}
	return ResolvedValue{}
}

// Redacted returns a copy safe to print: secrets keep only a short suffix.
func (r ResolvedConfig) Redacted() ResolvedConfig {
	out := r
	out.FirebaseSecret.Value = mask(r.FirebaseSecret.Value)
	out.LLMKeys = make(map[string]ResolvedValue, len(r.LLMKeys))
	for k, v := range r.LLMKeys {
		v.Value = mask(v.Value)
		out.LLMKeys[k] = v
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func parseDuration(v ResolvedValue) (time.Duration, error) {
	d, err := time.ParseDuration(v.Value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration %q (from %s)", v.Value, v.From)
	}
	return d, nil
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
