// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// STREAM BUFFER
// =============================================================================

// StreamBuffer batches deltas for consumers that render on a cadence rather
// than per token. Tokens accumulate until either the batch size or the flush
// interval is reached. All operations are mutex-protected: writes come from
// the streaming goroutine while flushes come from the consumer's loop.
type StreamBuffer struct {
	mu         sync.Mutex
	buffer     strings.Builder
	tokenCount int
	lastFlush  time.Time

	batchSize     int
	flushInterval time.Duration
}

// NewStreamBuffer creates a buffer with the given thresholds. Non-positive
// values fall back to 15 tokens and 33ms.
func NewStreamBuffer(batchSize int, flushInterval time.Duration) *StreamBuffer {
	if batchSize <= 0 {
		batchSize = 15
	}
	if flushInterval <= 0 {
		flushInterval = 33 * time.Millisecond
	}
	return &StreamBuffer{
		batchSize:     batchSize,
		flushInterval: flushInterval,
		lastFlush:     time.Now(),
	}
}

// Write adds a token to the buffer.
func (sb *StreamBuffer) Write(token string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.WriteString(token)
	sb.tokenCount++
}

// Flush returns the accumulated content when a threshold has been reached.
// The second return is false when nothing should be flushed yet.
func (sb *StreamBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	if sb.tokenCount < sb.batchSize && time.Since(sb.lastFlush) < sb.flushInterval {
		return "", false
	}
	return sb.drainLocked(), true
}

// ForceFlush returns all buffered content regardless of thresholds. Use on
// the terminal event so no tail of the reply is left behind.
func (sb *StreamBuffer) ForceFlush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	return sb.drainLocked(), true
}

// Reset discards buffered content. Use when a generation is cancelled.
func (sb *StreamBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.Reset()
	sb.tokenCount = 0
	sb.lastFlush = time.Now()
}

// Pending returns the number of buffered tokens.
func (sb *StreamBuffer) Pending() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.tokenCount
}

func (sb *StreamBuffer) drainLocked() string {
	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.tokenCount = 0
	sb.lastFlush = time.Now()
	return content
}
