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
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/sidechat/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// ollamaOptions carries generation options in Ollama's nested options object.
type ollamaOptions struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	NumPredict       *int     `json:"num_predict,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

func (o *ollamaOptions) empty() bool {
	return o.Temperature == nil && o.NumPredict == nil && o.TopP == nil &&
		o.FrequencyPenalty == nil && o.PresencePenalty == nil
}

// ollamaRequest is the body of a streaming /api/chat request.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []model.Message `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

// ollamaChunk is one parsed NDJSON frame.
type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// =============================================================================
// OLLAMA PROVIDER
// =============================================================================

// ollama streams chat responses from a local Ollama server.
type ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
	autoStart  bool
}

func newOllama(ep Endpoint, client *http.Client, autoStart bool) *ollama {
	base := strings.TrimRight(ep.BaseURL, "/")
	if base == "" {
		base = "http://127.0.0.1:11434"
	}
	return &ollama{
		baseURL:    base,
		model:      ep.Model,
		httpClient: httpClientOrDefault(client),
		autoStart:  autoStart,
	}
}

// Stream implements Provider over the NDJSON wire format.
func (p *ollama) Stream(ctx context.Context, req Request, cb Callbacks) error {
	opts := &ollamaOptions{
		Temperature:      req.Config.Temperature,
		NumPredict:       req.Config.MaxOutputTokens,
		TopP:             req.Config.TopP,
		FrequencyPenalty: req.Config.FrequencyPenalty,
		PresencePenalty:  req.Config.PresencePenalty,
	}
	if opts.empty() {
		opts = nil
	}

	body := ollamaRequest{
		Model:    p.model,
		Messages: req.Messages,
		Stream:   true,
		Options:  opts,
	}
	if req.Config.Model != "" {
		body.Model = req.Config.Model
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.open(ctx, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newHTTPError(resp.StatusCode, respBody)
	}

	return p.processStream(ctx, resp.Body, cb)
}

// open performs the POST, optionally starting the local server and retrying
// once when a localhost endpoint refuses the connection.
func (p *ollama) open(ctx context.Context, payload []byte) (*http.Response, error) {
	resp, err := p.post(ctx, payload)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !p.autoStart || !isLoopback(p.baseURL) {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	log.Debug().Str("base_url", p.baseURL).Msg("ollama unreachable, attempting to start local server")
	if startErr := startLocalServer(ctx, p.checkReady); startErr != nil {
		return nil, fmt.Errorf("local server not available: %w", startErr)
	}

	resp, err = p.post(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request failed after server start: %w", err)
	}
	return resp, nil
}

func (p *ollama) post(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return p.httpClient.Do(httpReq)
}

// checkReady probes the server root, the readiness check used while the
// local server boots.
func (p *ollama) checkReady(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

// processStream drives the NDJSON reader until the done:true frame, EOF, or
// cancellation. Frames buffered after the terminal frame are never read.
func (p *ollama) processStream(ctx context.Context, body io.Reader, cb Callbacks) error {
	reader := NewNDJSONReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != io.EOF {
				log.Debug().Err(err).Msg("ollama stream read failed mid-stream")
			}
			// Fail soft: the stream ended without its terminal frame.
			cb.done()
			return nil
		}

		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			// Skip malformed frames.
			log.Trace().Str("frame", string(line)).Msg("skipping malformed NDJSON frame")
			continue
		}

		if chunk.Message.Content != "" {
			cb.delta(chunk.Message.Content)
		}

		if chunk.Done {
			cb.done()
			return nil
		}
	}
}

// isLoopback reports whether the base URL points at the local machine.
func isLoopback(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
