package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("explicit missing file errors", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Fatal("explicit missing file must error")
		}
	})

	t.Run("yaml file values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "recall.yaml")
		content := "provider: openai\nmodel: gpt-4o-mini\nstate_db: /tmp/recall\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Provider != "openai" || cfg.Model != "gpt-4o-mini" || cfg.StateDB != "/tmp/recall" {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "recall.yaml")
		if err := os.WriteFile(path, []byte("provider: openai\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		t.Setenv(EnvProvider, "anthropic")
		t.Setenv(EnvModel, "claude-sonnet-4-5")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Provider != "anthropic" || cfg.Model != "claude-sonnet-4-5" {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		t.Setenv(EnvProvider, "acme-llm")
		if _, err := Load(""); err == nil {
			t.Error("expected error for unknown provider")
		}
	})
}

func TestNewLLMClient(t *testing.T) {
	t.Run("none yields no client", func(t *testing.T) {
		cfg := &Config{Provider: ProviderNone}
		client, err := cfg.NewLLMClient()
		if err != nil || client != nil {
			t.Errorf("client = %v err = %v", client, err)
		}
	})

	t.Run("openai without key errors", func(t *testing.T) {
		cfg := &Config{Provider: ProviderOpenAI}
		if _, err := cfg.NewLLMClient(); err == nil {
			t.Error("expected error without api key")
		}
	})

	t.Run("anthropic without key errors", func(t *testing.T) {
		cfg := &Config{Provider: ProviderAnthropic}
		if _, err := cfg.NewLLMClient(); err == nil {
			t.Error("expected error without api key")
		}
	})

	t.Run("gemini without key errors", func(t *testing.T) {
		cfg := &Config{Provider: ProviderGemini}
		if _, err := cfg.NewLLMClient(); err == nil {
			t.Error("expected error without api key")
		}
	})
}
