// Package config resolves recall's runtime configuration from an optional
// YAML file overlaid by environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/recall/internal/llm"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderNone      = "none"
)

// Environment variables. API keys are env-only; they never live in files.
const (
	EnvConfig          = "RECALL_CONFIG"
	EnvProvider        = "RECALL_PROVIDER"
	EnvModel           = "RECALL_MODEL"
	EnvStateDB         = "RECALL_STATE_DB"
	EnvRunLogDir       = "RECALL_RUN_LOG_DIR"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvOpenAIBaseURL   = "OPENAI_BASE_URL"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
)

// Config is the resolved runtime configuration.
type Config struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	StateDB       string `yaml:"state_db"`
	RunLogDir     string `yaml:"run_log_dir"`

	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

// Load resolves configuration: defaults, then the YAML file at path (or
// $RECALL_CONFIG when path is empty; a missing default file is fine), then
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Provider:  ProviderNone,
		StateDB:   "recall-state",
		RunLogDir: "runlogs",
	}

	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfig)
		explicit = path != ""
	}
	if path == "" {
		path = "recall.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No config file is a supported setup.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	cfg.Provider = strings.ToLower(cfg.Provider)
	switch cfg.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderNone, "":
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderNone
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overlay := map[string]*string{
		EnvProvider:        &cfg.Provider,
		EnvModel:           &cfg.Model,
		EnvStateDB:         &cfg.StateDB,
		EnvRunLogDir:       &cfg.RunLogDir,
		EnvOpenAIBaseURL:   &cfg.OpenAIBaseURL,
		EnvOpenAIKey:       &cfg.OpenAIAPIKey,
		EnvAnthropicAPIKey: &cfg.AnthropicAPIKey,
		EnvGeminiAPIKey:    &cfg.GeminiAPIKey,
	}
	for key, target := range overlay {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
}

// NewLLMClient builds the configured provider's client. Returns nil (and no
// error) for provider "none"; the pipeline then plans heuristically.
func (c *Config) NewLLMClient() (llm.Client, error) {
	switch c.Provider {
	case ProviderOpenAI:
		client, err := llm.NewOpenAIClient(c.OpenAIAPIKey, c.OpenAIBaseURL, c.Model)
		if err != nil {
			return nil, fmt.Errorf("configure openai: %w", err)
		}
		return client, nil
	case ProviderAnthropic:
		client, err := llm.NewAnthropicClient(c.AnthropicAPIKey, c.Model)
		if err != nil {
			return nil, fmt.Errorf("configure anthropic: %w", err)
		}
		return client, nil
	case ProviderGemini:
		client, err := llm.NewGeminiClient(c.GeminiAPIKey, c.Model)
		if err != nil {
			return nil, fmt.Errorf("configure gemini: %w", err)
		}
		return client, nil
	default:
		return nil, nil
	}
}
