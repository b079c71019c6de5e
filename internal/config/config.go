// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and resolves sidechat settings.
//
// Settings come from a TOML file with environment overrides on top:
//   - ~/.sidechat/config.toml (or an explicit path)
//   - SIDECHAT_* environment variables
//   - Built-in defaults
//
// A settings snapshot is resolved into a provider endpoint fresh for every
// generation, so editing the file (or the watcher reloading it) applies to
// the next send.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/sidechat/internal/model"
	"github.com/jeranaias/sidechat/internal/provider"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete sidechat configuration.
type Config struct {
	// Provider selects the backend: "mock", "openai", "ollama", or "agent".
	Provider string `toml:"provider"`

	OpenAI OpenAIConfig `toml:"openai"`
	Ollama OllamaConfig `toml:"ollama"`
	Agent  AgentConfig  `toml:"agent"`

	// Generation holds the base generation options; per-request overrides
	// merge on top.
	Generation model.GenerationConfig `toml:"generation"`

	UI UIConfig `toml:"ui"`
}

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// OllamaConfig configures the local Ollama backend.
type OllamaConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	// AutoStart starts the local server when the endpoint refuses
	// connections.
	AutoStart bool `toml:"auto_start"`
}

// AgentConfig configures the tool-using agent backend.
type AgentConfig struct {
	// WorkspaceRoot confines the agent's file tools. Defaults to the
	// current directory.
	WorkspaceRoot string `toml:"workspace_root"`
}

// UIConfig tunes the reference consumer's rendering.
type UIConfig struct {
	// BatchSize is the token batch threshold for flushing output.
	BatchSize int `toml:"batch_size"`
	// FlushIntervalMs is the time threshold for flushing output.
	FlushIntervalMs int `toml:"flush_interval_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: "mock",
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Ollama: OllamaConfig{
			// Explicit IPv4 avoids IPv6 localhost resolution issues on Windows.
			BaseURL:   "http://127.0.0.1:11434",
			Model:     "qwen2.5-coder:7b",
			AutoStart: true,
		},
		Agent: AgentConfig{
			WorkspaceRoot: ".",
		},
		UI: UIConfig{
			BatchSize:       15,
			FlushIntervalMs: 33,
		},
	}
}

// DefaultPath returns ~/.sidechat/config.toml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".sidechat", "config.toml")
	}
	return filepath.Join(home, ".sidechat", "config.toml")
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config file at path over the defaults, applies environment
// overrides, and validates the result. A missing file is not an error; the
// defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers SIDECHAT_* environment variables over the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("SIDECHAT_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("SIDECHAT_MODEL"); v != "" {
		c.OpenAI.Model = v
		c.Ollama.Model = v
	}
	if v := os.Getenv("SIDECHAT_OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("SIDECHAT_OLLAMA_BASE_URL"); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv("SIDECHAT_WORKSPACE"); v != "" {
		c.Agent.WorkspaceRoot = v
	}
}

// Validate checks the provider kind and endpoint URLs.
func (c *Config) Validate() error {
	if _, err := provider.ParseKind(c.Provider); err != nil {
		return err
	}
	for name, raw := range map[string]string{
		"openai.base_url": c.OpenAI.BaseURL,
		"ollama.base_url": c.Ollama.BaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}
	if c.UI.BatchSize < 0 || c.UI.FlushIntervalMs < 0 {
		return fmt.Errorf("ui thresholds must not be negative")
	}
	return nil
}
