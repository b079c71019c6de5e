// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the streaming generation orchestrator: the single
// authority over which generation is currently running, how it is cancelled,
// and which events reach the presentation boundary.
package chat

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies an event sent to the presentation boundary.
type EventKind string

const (
	// EventDelta carries an incremental text fragment.
	EventDelta EventKind = "delta"
	// EventDone marks the end of a generation. Exactly one per handle.
	EventDone EventKind = "done"
	// EventError carries a failure message. Always followed by EventDone.
	EventError EventKind = "error"
)

// Event is the transient envelope delivered to a Sink. Events are never
// persisted.
type Event struct {
	Kind     EventKind `json:"kind"`
	HandleID string    `json:"handleId,omitempty"`
	Text     string    `json:"text,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Sink receives orchestrator events. For a given handle the sequence is
// zero-or-more Delta calls followed by exactly one Done; Error, when it
// occurs, precedes the Done. Implementations must not call back into the
// orchestrator synchronously.
type Sink interface {
	Delta(handleID, text string)
	Done(handleID string)
	Error(handleID, message string)
}

// SinkFunc adapts three funcs to a Sink. Any of them may be nil.
type SinkFunc struct {
	OnDelta func(handleID, text string)
	OnDone  func(handleID string)
	OnError func(handleID, message string)
}

func (s SinkFunc) Delta(handleID, text string) {
	if s.OnDelta != nil {
		s.OnDelta(handleID, text)
	}
}

func (s SinkFunc) Done(handleID string) {
	if s.OnDone != nil {
		s.OnDone(handleID)
	}
}

func (s SinkFunc) Error(handleID, message string) {
	if s.OnError != nil {
		s.OnError(handleID, message)
	}
}
