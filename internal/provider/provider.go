// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the streaming chat backends: a deterministic
// mock, an OpenAI-compatible HTTP backend (SSE), a local Ollama backend
// (newline-delimited JSON), and a tool-using agent.
//
// All backends satisfy the same Stream contract:
//   - deltas are delivered in arrival order through Callbacks.OnDelta;
//   - a natural end of stream invokes Callbacks.OnDone exactly once;
//   - cancellation stops the stream without invoking OnDone and returns
//     the context error (the caller owns the terminal event on that path);
//   - failures before any bytes stream are returned as errors with no
//     callback invoked;
//   - transport failures after streaming has begun degrade to a single
//     best-effort OnDone so the consumer never hangs mid-stream.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/jeranaias/sidechat/internal/model"
	"github.com/jeranaias/sidechat/internal/tools"
)

// =============================================================================
// PROVIDER KIND
// =============================================================================

// Kind identifies a chat backend. The set is closed: adding a backend means
// adding a constant here and a case in New.
type Kind int

const (
	// KindMock is the network-free deterministic backend.
	KindMock Kind = iota
	// KindOpenAI is the OpenAI-compatible HTTP backend (SSE wire format).
	KindOpenAI
	// KindOllama is the local Ollama backend (NDJSON wire format).
	KindOllama
	// KindAgent is the tool-using agent backend.
	KindAgent
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMock:
		return "mock"
	case KindOpenAI:
		return "openai"
	case KindOllama:
		return "ollama"
	case KindAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "mock", "":
		return KindMock, nil
	case "openai", "openai-compatible":
		return KindOpenAI, nil
	case "ollama":
		return KindOllama, nil
	case "agent":
		return KindAgent, nil
	}
	return 0, &ConfigError{Field: "provider", Message: "unknown provider kind: " + s}
}

// RequiresCredential reports whether the kind needs a bearer credential.
func (k Kind) RequiresCredential() bool {
	return k == KindOpenAI
}

// =============================================================================
// ENDPOINT
// =============================================================================

// Endpoint describes where and how to reach a backend. It is built fresh
// from the current settings snapshot for every generation; callers must not
// cache it across generations.
type Endpoint struct {
	Kind       Kind
	BaseURL    string
	Model      string
	Credential string // bearer key; empty when the kind needs none
}

// =============================================================================
// STREAM CONTRACT
// =============================================================================

// Request carries the messages and options for one streaming generation.
type Request struct {
	Messages []model.Message
	Config   model.GenerationConfig
}

// Callbacks receives stream events. Either callback may be nil.
type Callbacks struct {
	// OnDelta is invoked for each non-empty text fragment, in arrival order.
	OnDelta func(text string)
	// OnDone is invoked exactly once on natural or fail-soft completion.
	// It is never invoked after cancellation.
	OnDone func()
}

func (cb Callbacks) delta(text string) {
	if cb.OnDelta != nil {
		cb.OnDelta(text)
	}
}

func (cb Callbacks) done() {
	if cb.OnDone != nil {
		cb.OnDone()
	}
}

// Provider is the uniform streaming chat contract.
type Provider interface {
	// Stream opens the generation and blocks until it ends. See the package
	// comment for the callback and error semantics.
	Stream(ctx context.Context, req Request, cb Callbacks) error
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// Options adjusts provider construction. The zero value is usable.
type Options struct {
	// HTTPClient overrides the default streaming HTTP client.
	HTTPClient *http.Client
	// Workspace supplies the tool collaborator for the agent kind. When nil
	// the agent runs with a workspace rooted at the current directory whose
	// mutating tools deny everything.
	Workspace *tools.Workspace
	// MockInterval overrides the mock/agent token pacing interval.
	MockInterval time.Duration
	// AutoStart enables starting the local Ollama server when the endpoint
	// refuses connections.
	AutoStart bool
}

// New constructs the provider for an endpoint. Unknown kinds are a
// configuration error; a missing credential for a kind that requires one is
// rejected here so no request is ever attempted with it.
func New(ep Endpoint, opts Options) (Provider, error) {
	switch ep.Kind {
	case KindMock:
		return newMock(opts.MockInterval), nil
	case KindOpenAI:
		if ep.Credential == "" {
			return nil, ErrMissingCredential
		}
		return newOpenAI(ep, opts.HTTPClient), nil
	case KindOllama:
		return newOllama(ep, opts.HTTPClient, opts.AutoStart), nil
	case KindAgent:
		ws := opts.Workspace
		if ws == nil {
			ws = tools.NewWorkspace(".", nil)
		}
		return newAgent(ws, opts.MockInterval), nil
	}
	return nil, ErrUnknownKind
}
