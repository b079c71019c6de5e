// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/sidechat/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// openAIRequest is the body of a streaming chat completion request.
// Optional numerics stay pointers so an unset option is omitted rather than
// sent as zero.
type openAIRequest struct {
	Model            string          `json:"model"`
	Messages         []model.Message `json:"messages"`
	Stream           bool            `json:"stream"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
}

// openAIChunk is one parsed SSE payload.
type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// content returns the first choice's delta content, empty when absent.
func (c *openAIChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// =============================================================================
// OPENAI-COMPATIBLE PROVIDER
// =============================================================================

// openAI streams chat completions from any OpenAI-compatible endpoint.
type openAI struct {
	baseURL    string
	model      string
	credential string
	httpClient *http.Client
}

func newOpenAI(ep Endpoint, client *http.Client) *openAI {
	return &openAI{
		baseURL:    strings.TrimRight(ep.BaseURL, "/"),
		model:      ep.Model,
		credential: ep.Credential,
		httpClient: httpClientOrDefault(client),
	}
}

// Stream implements Provider over the SSE wire format.
func (p *openAI) Stream(ctx context.Context, req Request, cb Callbacks) error {
	body := openAIRequest{
		Model:            p.model,
		Messages:         req.Messages,
		Stream:           true,
		Temperature:      req.Config.Temperature,
		MaxTokens:        req.Config.MaxOutputTokens,
		TopP:             req.Config.TopP,
		FrequencyPenalty: req.Config.FrequencyPenalty,
		PresencePenalty:  req.Config.PresencePenalty,
	}
	if req.Config.Model != "" {
		body.Model = req.Config.Model
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.credential)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newHTTPError(resp.StatusCode, respBody)
	}

	return p.processStream(ctx, resp.Body, cb)
}

// processStream drives the SSE reader until the [DONE] sentinel, EOF, or
// cancellation. Once streaming has begun, read failures other than
// cancellation degrade to a single OnDone.
func (p *openAI) processStream(ctx context.Context, body io.Reader, cb Callbacks) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != io.EOF {
				log.Debug().Err(err).Msg("openai stream read failed mid-stream")
			}
			// Fail soft: the stream ended without its sentinel.
			cb.done()
			return nil
		}

		if isDoneSentinel(data) {
			cb.done()
			return nil
		}

		var chunk openAIChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed frames.
			log.Trace().Str("frame", string(data)).Msg("skipping malformed SSE frame")
			continue
		}

		if content := chunk.content(); content != "" {
			cb.delta(content)
		}
	}
}
