// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// GENERATION OPTIONS
// =============================================================================

// GenerationConfig holds per-request generation options. Numeric options are
// pointers so that "not set" is distinguishable from an explicit zero; absent
// options default per-provider.
type GenerationConfig struct {
	Model            string   `json:"model,omitempty" toml:"model"`
	Temperature      *float64 `json:"temperature,omitempty" toml:"temperature"`
	MaxOutputTokens  *int     `json:"max_output_tokens,omitempty" toml:"max_output_tokens"`
	TopP             *float64 `json:"top_p,omitempty" toml:"top_p"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" toml:"frequency_penalty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" toml:"presence_penalty"`
	SystemPrompt     string   `json:"system_prompt,omitempty" toml:"system_prompt"`
}

// Merge returns a copy of the receiver with any option set in override taking
// precedence. The receiver is not modified.
func (c GenerationConfig) Merge(override *GenerationConfig) GenerationConfig {
	if override == nil {
		return c
	}
	out := c
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.MaxOutputTokens != nil {
		out.MaxOutputTokens = override.MaxOutputTokens
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.FrequencyPenalty != nil {
		out.FrequencyPenalty = override.FrequencyPenalty
	}
	if override.PresencePenalty != nil {
		out.PresencePenalty = override.PresencePenalty
	}
	if override.SystemPrompt != "" {
		out.SystemPrompt = override.SystemPrompt
	}
	return out
}

// Float64 returns a pointer to v. Convenience for building configs.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v. Convenience for building configs.
func Int(v int) *int { return &v }
