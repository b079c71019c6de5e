// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "testing"

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem, RoleTool} {
		if !r.Valid() {
			t.Errorf("%q.Valid() = false, want true", r)
		}
	}
	if Role("moderator").Valid() {
		t.Error(`Role("moderator").Valid() = true, want false`)
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("hello", "")
	if len(msgs) != 1 || msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Errorf("BuildMessages without system = %+v, want single user message", msgs)
	}

	msgs = BuildMessages("hello", "be terse")
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Content != "be terse" {
		t.Errorf("msgs[0] = %+v, want system prompt first", msgs[0])
	}
	if msgs[1].Role != RoleUser {
		t.Errorf("msgs[1].Role = %q, want user", msgs[1].Role)
	}
}

func TestGenerationConfigMerge(t *testing.T) {
	base := GenerationConfig{
		Model:        "base-model",
		Temperature:  Float64(0.5),
		SystemPrompt: "base prompt",
	}

	got := base.Merge(nil)
	if got.Model != "base-model" || *got.Temperature != 0.5 {
		t.Errorf("Merge(nil) = %+v, want unchanged copy", got)
	}

	got = base.Merge(&GenerationConfig{
		Temperature:     Float64(0.9),
		MaxOutputTokens: Int(64),
	})
	if *got.Temperature != 0.9 {
		t.Errorf("Temperature = %v, want override 0.9", *got.Temperature)
	}
	if got.MaxOutputTokens == nil || *got.MaxOutputTokens != 64 {
		t.Errorf("MaxOutputTokens = %v, want 64", got.MaxOutputTokens)
	}
	// Fields the override leaves unset keep the base values.
	if got.Model != "base-model" || got.SystemPrompt != "base prompt" {
		t.Errorf("unset fields changed: %+v", got)
	}

	// The receiver is never modified.
	if *base.Temperature != 0.5 || base.MaxOutputTokens != nil {
		t.Errorf("base mutated by Merge: %+v", base)
	}
}
