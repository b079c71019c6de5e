// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the chat message and generation option types shared
// by the orchestrator and the providers.
package model

// =============================================================================
// ROLES
// =============================================================================

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether the role is one of the recognized values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is a single chat message. Messages are immutable once created; an
// ordered slice of them forms a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a message with the user role.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a message with the assistant role.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a message with the system role.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewToolMessage creates a message with the tool role. Tool messages pass
// through to the wire unmodified.
func NewToolMessage(content string) Message {
	return Message{Role: RoleTool, Content: content}
}

// BuildMessages constructs the single-turn sequence sent to a provider:
// an optional system prompt followed by the user's message.
func BuildMessages(userText, systemPrompt string) []Message {
	msgs := make([]Message, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, NewSystemMessage(systemPrompt))
	}
	msgs = append(msgs, NewUserMessage(userText))
	return msgs
}
