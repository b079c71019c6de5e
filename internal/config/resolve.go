// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"os"

	"github.com/jeranaias/sidechat/internal/model"
	"github.com/jeranaias/sidechat/internal/provider"
)

// =============================================================================
// CREDENTIAL RESOLUTION
// =============================================================================

// SecretStore abstracts the editor host's secret storage. Lookup failure is
// not an error; the env fallback applies.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, bool)
}

// CredentialKey is the secret-store key for the OpenAI-compatible bearer key.
const CredentialKey = "sidechat.apiKey"

// credentialEnvVars are consulted, in order, when the secret store has no
// entry.
var credentialEnvVars = []string{"SIDECHAT_API_KEY", "OPENAI_API_KEY"}

// resolveCredential looks up the bearer credential: secret store first, then
// environment variables. Returns empty when nothing is configured.
func resolveCredential(ctx context.Context, store SecretStore) string {
	if store != nil {
		if key, ok := store.Get(ctx, CredentialKey); ok && key != "" {
			return key
		}
	}
	for _, name := range credentialEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// ENDPOINT RESOLUTION
// =============================================================================

// Resolve builds the provider endpoint and base generation options from this
// settings snapshot. A kind that requires a credential fails here with
// provider.ErrMissingCredential when none resolves, so the caller can report
// the configuration error without any network attempt.
func (c *Config) Resolve(ctx context.Context, store SecretStore) (provider.Endpoint, model.GenerationConfig, error) {
	kind, err := provider.ParseKind(c.Provider)
	if err != nil {
		return provider.Endpoint{}, model.GenerationConfig{}, err
	}

	ep := provider.Endpoint{Kind: kind}
	switch kind {
	case provider.KindOpenAI:
		ep.BaseURL = c.OpenAI.BaseURL
		ep.Model = c.OpenAI.Model
	case provider.KindOllama:
		ep.BaseURL = c.Ollama.BaseURL
		ep.Model = c.Ollama.Model
	}

	if kind.RequiresCredential() {
		ep.Credential = resolveCredential(ctx, store)
		if ep.Credential == "" {
			return provider.Endpoint{}, model.GenerationConfig{}, provider.ErrMissingCredential
		}
	}

	return ep, c.Generation, nil
}
