// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jeranaias/sidechat/internal/model"
)

func ndjsonFrame(content string, done bool) string {
	frame := ollamaChunk{Done: done}
	frame.Message.Content = content
	b, _ := json.Marshal(frame)
	return string(b) + "\n"
}

func TestOllama_StreamsDeltasThenDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		w.Write([]byte(ndjsonFrame("A", false) + ndjsonFrame("B", false) + ndjsonFrame("", true)))
	}))
	defer srv.Close()

	p := newOllama(Endpoint{BaseURL: srv.URL, Model: "qwen2.5-coder:7b"}, nil, false)
	rec := &recorder{}
	if err := p.Stream(context.Background(), testRequest("hi"), rec.callbacks()); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if got := rec.text(); got != "AB" {
		t.Errorf("assembled text = %q, want AB", got)
	}
	if _, dones := rec.counts(); dones != 1 {
		t.Errorf("dones = %d, want 1", dones)
	}
}

func TestOllama_IgnoresFramesAfterTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ndjsonFrame("A", false) + ndjsonFrame("", true) + ndjsonFrame("ghost", false)))
	}))
	defer srv.Close()

	p := newOllama(Endpoint{BaseURL: srv.URL}, nil, false)
	rec := &recorder{}
	if err := p.Stream(context.Background(), testRequest("hi"), rec.callbacks()); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if got := rec.text(); got != "A" {
		t.Errorf("assembled text = %q, want A", got)
	}
	if _, dones := rec.counts(); dones != 1 {
		t.Errorf("dones = %d, want 1", dones)
	}
}

func TestOllama_SkipsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ndjsonFrame("A", false) + "{broken\n" + ndjsonFrame("B", true)))
	}))
	defer srv.Close()

	p := newOllama(Endpoint{BaseURL: srv.URL}, nil, false)
	rec := &recorder{}
	if err := p.Stream(context.Background(), testRequest("hi"), rec.callbacks()); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if got := rec.text(); got != "AB" {
		t.Errorf("assembled text = %q, want AB", got)
	}
}

func TestOllama_TruncatedStreamFailsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ndjsonFrame("partial", false)))
	}))
	defer srv.Close()

	p := newOllama(Endpoint{BaseURL: srv.URL}, nil, false)
	rec := &recorder{}
	if err := p.Stream(context.Background(), testRequest("hi"), rec.callbacks()); err != nil {
		t.Fatalf("Stream() error = %v, want nil on fail-soft", err)
	}

	if _, dones := rec.counts(); dones != 1 {
		t.Errorf("dones = %d, want 1", dones)
	}
}

func TestOllama_ConnectionRefusedBeforeStream(t *testing.T) {
	// A server that is immediately closed guarantees a refused connection.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p := newOllama(Endpoint{BaseURL: srv.URL}, nil, false)
	rec := &recorder{}
	err := p.Stream(context.Background(), testRequest("hi"), rec.callbacks())
	if err == nil {
		t.Fatal("Stream() error = nil, want connection failure")
	}

	deltas, dones := rec.counts()
	if deltas != 0 || dones != 0 {
		t.Errorf("callbacks fired on pre-stream failure: deltas=%d dones=%d", deltas, dones)
	}
}

func TestOllama_NonOKStatusReturnsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	p := newOllama(Endpoint{BaseURL: srv.URL, Model: "missing"}, nil, false)
	err := p.Stream(context.Background(), testRequest("hi"), Callbacks{})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Stream() error = %v, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", httpErr.Status)
	}
}

func TestOllama_OmitsEmptyOptions(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(ndjsonFrame("", true)))
	}))
	defer srv.Close()

	p := newOllama(Endpoint{BaseURL: srv.URL, Model: "m"}, nil, false)
	if err := p.Stream(context.Background(), testRequest("hi"), Callbacks{}); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if _, present := raw["options"]; present {
		t.Error("options object sent despite no options set")
	}
}

func TestOllama_MapsOptionsToNestedObject(t *testing.T) {
	var body ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(ndjsonFrame("", true)))
	}))
	defer srv.Close()

	p := newOllama(Endpoint{BaseURL: srv.URL, Model: "m"}, nil, false)
	req := testRequest("hi")
	req.Config.Temperature = model.Float64(0.2)
	req.Config.MaxOutputTokens = model.Int(128)
	if err := p.Stream(context.Background(), req, Callbacks{}); err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if body.Options == nil {
		t.Fatal("options object missing")
	}
	if body.Options.Temperature == nil || *body.Options.Temperature != 0.2 {
		t.Errorf("options.temperature = %v, want 0.2", body.Options.Temperature)
	}
	if body.Options.NumPredict == nil || *body.Options.NumPredict != 128 {
		t.Errorf("options.num_predict = %v, want 128", body.Options.NumPredict)
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"http://127.0.0.1:11434", true},
		{"http://localhost:11434", true},
		{"http://[::1]:11434", true},
		{"http://example.com:11434", false},
		{"http://10.0.0.5", false},
	}
	for _, tt := range tests {
		if got := isLoopback(tt.url); got != tt.want {
			t.Errorf("isLoopback(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
