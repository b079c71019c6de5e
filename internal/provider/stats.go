// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// Stats summarizes one completed generation.
type Stats struct {
	TokenCount  int
	TimeToFirst time.Duration
	Total       time.Duration
}

// Format renders the stats for a status line.
func (s Stats) Format() string {
	return fmt.Sprintf("%d tokens | %.1fs | TTFT %dms",
		s.TokenCount, s.Total.Seconds(), s.TimeToFirst.Milliseconds())
}

// Accumulator collects deltas and timing for one generation. Safe for use
// from the streaming goroutine while the consumer reads results after the
// terminal event.
type Accumulator struct {
	mu      sync.Mutex
	start   time.Time
	firstAt time.Time
	tokens  int
	content strings.Builder
}

// NewAccumulator creates an accumulator with the start time set.
func NewAccumulator() *Accumulator {
	return &Accumulator{start: time.Now()}
}

// Add records one delta.
func (a *Accumulator) Add(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.firstAt.IsZero() {
		a.firstAt = time.Now()
	}
	a.tokens++
	a.content.WriteString(text)
}

// Content returns everything accumulated so far.
func (a *Accumulator) Content() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.content.String()
}

// Stats returns the collected statistics.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Stats{TokenCount: a.tokens, Total: time.Since(a.start)}
	if !a.firstAt.IsZero() {
		s.TimeToFirst = a.firstAt.Sub(a.start)
	}
	return s
}
