// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"time"
	"unicode"

	"golang.org/x/time/rate"

	"github.com/jeranaias/sidechat/internal/model"
)

// =============================================================================
// MOCK PROVIDER
// =============================================================================

// DefaultMockInterval is the pacing between emitted mock tokens.
const DefaultMockInterval = 40 * time.Millisecond

// mock is the deterministic, network-free backend. It echoes the user's
// message token by token at a fixed tick, which makes it both the safe
// default when no backend is configured and the reference backend for
// event-sequencing tests.
type mock struct {
	interval time.Duration
}

func newMock(interval time.Duration) *mock {
	if interval <= 0 {
		interval = DefaultMockInterval
	}
	return &mock{interval: interval}
}

// Stream implements Provider. Cancellation between tokens ends emission
// without firing OnDone.
func (p *mock) Stream(ctx context.Context, req Request, cb Callbacks) error {
	reply := mockReply(req.Messages)
	return streamTokens(ctx, splitTokens(reply), p.interval, cb)
}

// mockReply builds the fixed echo reply for the last user message.
func mockReply(msgs []model.Message) string {
	text := ""
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			text = m.Content
		}
	}
	if text == "" {
		return "Mock provider ready. Send a message and it will be echoed back."
	}
	return "You said: \"" + text + "\". This is the mock provider; configure a real backend for model replies."
}

// streamTokens emits tokens one per tick, honoring cancellation between
// tokens, then fires OnDone. Shared by the mock and agent backends.
// The limiter's initial burst is consumed up front so the first token also
// waits a full tick.
func streamTokens(ctx context.Context, tokens []string, interval time.Duration, cb Callbacks) error {
	lim := rate.NewLimiter(rate.Every(interval), 1)
	lim.Allow()

	for _, tok := range tokens {
		if err := lim.Wait(ctx); err != nil {
			return ctx.Err()
		}
		cb.delta(tok)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	cb.done()
	return nil
}

// splitTokens splits text into alternating word and whitespace tokens so the
// original spacing is preserved when the tokens are concatenated.
func splitTokens(text string) []string {
	if text == "" {
		return nil
	}

	var tokens []string
	runes := []rune(text)
	start := 0
	inSpace := unicode.IsSpace(runes[0])

	for i, r := range runes {
		if unicode.IsSpace(r) != inSpace {
			tokens = append(tokens, string(runes[start:i]))
			start = i
			inSpace = !inSpace
		}
	}
	tokens = append(tokens, string(runes[start:]))
	return tokens
}
