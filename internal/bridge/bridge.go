// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bridge routes line-delimited JSON messages between a presentation
// boundary (the sidebar webview's message transport) and the orchestrator.
// Inbound messages are "send" and "stop"; outbound messages are the delta,
// done, and error events.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/sidechat/internal/chat"
	"github.com/jeranaias/sidechat/internal/model"
)

// =============================================================================
// MESSAGE SHAPES
// =============================================================================

// inbound is a message received from the presentation boundary.
type inbound struct {
	Type    string                  `json:"type"`
	Text    string                  `json:"text,omitempty"`
	Config  *model.GenerationConfig `json:"config,omitempty"`
	Context map[string]string       `json:"context,omitempty"`
	Model   string                  `json:"model,omitempty"`
}

// outbound is a message sent to the presentation boundary.
type outbound struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// Controller is the orchestrator surface the bridge drives.
type Controller interface {
	Start(ctx context.Context, req chat.Request) string
	Stop()
}

// MaxMessageSize caps one inbound line (1MB).
const MaxMessageSize = 1 << 20

// =============================================================================
// BRIDGE
// =============================================================================

// Bridge serializes orchestrator events onto a writer and pumps inbound
// messages to a Controller. It is the chat.Sink for its orchestrator.
// Writes are mutex-guarded; events and error replies may interleave from
// different goroutines but individual lines never tear.
type Bridge struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// New creates a bridge emitting outbound messages to w.
func New(w io.Writer) *Bridge {
	return &Bridge{enc: json.NewEncoder(w)}
}

// Delta implements chat.Sink.
func (b *Bridge) Delta(handleID, text string) {
	b.send(outbound{Type: "delta", ID: handleID, Text: text})
}

// Done implements chat.Sink.
func (b *Bridge) Done(handleID string) {
	b.send(outbound{Type: "done", ID: handleID})
}

// Error implements chat.Sink.
func (b *Bridge) Error(handleID, message string) {
	b.send(outbound{Type: "error", ID: handleID, Message: message})
}

func (b *Bridge) send(msg outbound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enc.Encode(msg); err != nil {
		log.Warn().Err(err).Str("type", msg.Type).Msg("failed to write outbound message")
	}
}

// Run reads inbound messages from r until EOF or ctx cancellation and
// dispatches them to ctrl. Malformed or unknown messages produce an error
// reply with no handle; they never stop the loop.
func (b *Bridge) Run(ctx context.Context, r io.Reader, ctrl Controller) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxMessageSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg inbound
		if err := json.Unmarshal(line, &msg); err != nil {
			b.Error("", "malformed message: "+err.Error())
			continue
		}

		switch msg.Type {
		case "send":
			if msg.Text == "" {
				b.Error("", "send requires non-empty text")
				continue
			}
			ctrl.Start(ctx, chat.Request{
				Text:    msg.Text,
				Config:  msg.Config,
				Context: msg.Context,
				Model:   msg.Model,
			})
		case "stop":
			ctrl.Stop()
		default:
			b.Error("", "unknown message type: "+msg.Type)
		}
	}
	return scanner.Err()
}
