// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/sidechat/internal/model"
	"github.com/jeranaias/sidechat/internal/provider"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// memorySink records events and signals each Done on a channel.
type memorySink struct {
	mu     sync.Mutex
	events []Event
	doneCh chan string
}

func newMemorySink() *memorySink {
	return &memorySink{doneCh: make(chan string, 16)}
}

func (s *memorySink) Delta(handleID, text string) {
	s.mu.Lock()
	s.events = append(s.events, Event{Kind: EventDelta, HandleID: handleID, Text: text})
	s.mu.Unlock()
}

func (s *memorySink) Done(handleID string) {
	s.mu.Lock()
	s.events = append(s.events, Event{Kind: EventDone, HandleID: handleID})
	s.mu.Unlock()
	s.doneCh <- handleID
}

func (s *memorySink) Error(handleID, message string) {
	s.mu.Lock()
	s.events = append(s.events, Event{Kind: EventError, HandleID: handleID, Message: message})
	s.mu.Unlock()
}

// snapshot returns a copy of the recorded events.
func (s *memorySink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// forHandle filters the snapshot down to one handle's events.
func (s *memorySink) forHandle(id string) []Event {
	var out []Event
	for _, ev := range s.snapshot() {
		if ev.HandleID == id {
			out = append(out, ev)
		}
	}
	return out
}

// waitDone blocks until Done fires for id or the timeout elapses.
func (s *memorySink) waitDone(t *testing.T, id string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-s.doneCh:
			if got == id {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for Done(%s)", id)
		}
	}
}

func countKinds(events []Event) (deltas, dones, errs int) {
	for _, ev := range events {
		switch ev.Kind {
		case EventDelta:
			deltas++
		case EventDone:
			dones++
		case EventError:
			errs++
		}
	}
	return
}

func mockResolver() Resolver {
	return ResolverFunc(func(ctx context.Context) (provider.Endpoint, model.GenerationConfig, error) {
		return provider.Endpoint{Kind: provider.KindMock}, model.GenerationConfig{}, nil
	})
}

// blockingProvider holds its stream open until released, then emits one late
// delta. It never calls OnDone.
type blockingProvider struct {
	release chan struct{}
}

func (p *blockingProvider) Stream(ctx context.Context, req provider.Request, cb provider.Callbacks) error {
	<-p.release
	cb.OnDelta("late")
	return nil
}

// captureProvider records the request it receives and completes immediately.
type captureProvider struct {
	mu  sync.Mutex
	req provider.Request
}

func (p *captureProvider) Stream(ctx context.Context, req provider.Request, cb provider.Callbacks) error {
	p.mu.Lock()
	p.req = req
	p.mu.Unlock()
	cb.OnDone()
	return nil
}

// =============================================================================
// ORCHESTRATOR TESTS
// =============================================================================

func TestOrchestrator_StreamsToCompletion(t *testing.T) {
	sink := newMemorySink()
	orch := NewOrchestrator(mockResolver(), sink, provider.Options{MockInterval: time.Millisecond})

	id := orch.Start(context.Background(), Request{Text: "hello"})
	require.NotEmpty(t, id)
	sink.waitDone(t, id)

	events := sink.forHandle(id)
	deltas, dones, errs := countKinds(events)
	assert.Greater(t, deltas, 0, "expected at least one delta")
	assert.Equal(t, 1, dones, "expected exactly one done")
	assert.Equal(t, 0, errs)
	assert.Equal(t, EventDone, events[len(events)-1].Kind, "done must be the final event")
	assert.False(t, orch.Active())
}

func TestOrchestrator_StopWhenIdleIsNoOp(t *testing.T) {
	sink := newMemorySink()
	orch := NewOrchestrator(mockResolver(), sink, provider.Options{})

	orch.Stop()
	orch.Stop()

	assert.Empty(t, sink.snapshot())
	assert.False(t, orch.Active())
}

func TestOrchestrator_StartThenImmediateStop(t *testing.T) {
	sink := newMemorySink()
	// Default pacing leaves a wide window before the first token.
	orch := NewOrchestrator(mockResolver(), sink, provider.Options{})

	id := orch.Start(context.Background(), Request{Text: "hello"})
	orch.Stop()
	sink.waitDone(t, id)

	// Allow any stray late callbacks to arrive before asserting.
	time.Sleep(150 * time.Millisecond)

	deltas, dones, errs := countKinds(sink.forHandle(id))
	assert.Equal(t, 0, deltas, "stop before first token must yield zero deltas")
	assert.Equal(t, 1, dones, "stop must synthesize exactly one done")
	assert.Equal(t, 0, errs)
	assert.False(t, orch.Active())
}

func TestOrchestrator_SupersedeCancelsOldGeneration(t *testing.T) {
	sink := newMemorySink()
	orch := NewOrchestrator(mockResolver(), sink, provider.Options{MockInterval: 30 * time.Millisecond})

	oldID := orch.Start(context.Background(), Request{Text: "first"})
	newID := orch.Start(context.Background(), Request{Text: "second"})
	require.NotEqual(t, oldID, newID)
	sink.waitDone(t, oldID)
	sink.waitDone(t, newID)

	oldDeltas, oldDones, _ := countKinds(sink.forHandle(oldID))
	assert.Equal(t, 0, oldDeltas, "superseded generation must not stream")
	assert.Equal(t, 1, oldDones, "superseded generation gets one synthesized done")

	newDeltas, newDones, _ := countKinds(sink.forHandle(newID))
	assert.Greater(t, newDeltas, 0)
	assert.Equal(t, 1, newDones)
}

func TestOrchestrator_ResolverFailureEmitsErrorThenDone(t *testing.T) {
	sink := newMemorySink()
	resolver := ResolverFunc(func(ctx context.Context) (provider.Endpoint, model.GenerationConfig, error) {
		return provider.Endpoint{}, model.GenerationConfig{}, provider.ErrMissingCredential
	})
	orch := NewOrchestrator(resolver, sink, provider.Options{})

	id := orch.Start(context.Background(), Request{Text: "hello"})
	sink.waitDone(t, id)

	events := sink.forHandle(id)
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].Kind)
	assert.Contains(t, events[0].Message, "missing API key")
	assert.Equal(t, EventDone, events[1].Kind)
	assert.False(t, orch.Active())
}

func TestOrchestrator_MissingCredentialNeverTouchesNetwork(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	sink := newMemorySink()
	resolver := ResolverFunc(func(ctx context.Context) (provider.Endpoint, model.GenerationConfig, error) {
		// Endpoint is reachable but the credential is absent.
		return provider.Endpoint{Kind: provider.KindOpenAI, BaseURL: srv.URL}, model.GenerationConfig{}, nil
	})
	orch := NewOrchestrator(resolver, sink, provider.Options{})

	id := orch.Start(context.Background(), Request{Text: "hello"})
	sink.waitDone(t, id)

	deltas, dones, errs := countKinds(sink.forHandle(id))
	assert.Equal(t, 0, deltas)
	assert.Equal(t, 1, dones)
	assert.Equal(t, 1, errs)
	assert.Equal(t, int64(0), requests.Load(), "no request may be attempted without a credential")
}

func TestOrchestrator_BackendFailureSurfacesAsErrorThenDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := newMemorySink()
	resolver := ResolverFunc(func(ctx context.Context) (provider.Endpoint, model.GenerationConfig, error) {
		return provider.Endpoint{Kind: provider.KindOpenAI, BaseURL: srv.URL, Credential: "k"}, model.GenerationConfig{}, nil
	})
	orch := NewOrchestrator(resolver, sink, provider.Options{})

	id := orch.Start(context.Background(), Request{Text: "hello"})
	sink.waitDone(t, id)

	events := sink.forHandle(id)
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].Kind)
	assert.Contains(t, events[0].Message, "500")
	assert.Equal(t, EventDone, events[1].Kind)
}

func TestOrchestrator_LateCallbackFromStoppedGenerationDropped(t *testing.T) {
	sink := newMemorySink()
	orch := NewOrchestrator(mockResolver(), sink, provider.Options{})

	blocked := &blockingProvider{release: make(chan struct{})}
	orch.construct = func(ep provider.Endpoint, opts provider.Options) (provider.Provider, error) {
		return blocked, nil
	}

	id := orch.Start(context.Background(), Request{Text: "hello"})
	// Let run() reach the provider before stopping.
	time.Sleep(20 * time.Millisecond)
	orch.Stop()
	sink.waitDone(t, id)

	close(blocked.release)
	time.Sleep(50 * time.Millisecond)

	deltas, dones, _ := countKinds(sink.forHandle(id))
	assert.Equal(t, 0, deltas, "late delta from a stopped generation must be dropped")
	assert.Equal(t, 1, dones)
}

func TestOrchestrator_ContextSnapshotFoldedIntoSystemPrompt(t *testing.T) {
	sink := newMemorySink()
	resolver := ResolverFunc(func(ctx context.Context) (provider.Endpoint, model.GenerationConfig, error) {
		return provider.Endpoint{Kind: provider.KindMock}, model.GenerationConfig{SystemPrompt: "You are terse."}, nil
	})
	orch := NewOrchestrator(resolver, sink, provider.Options{})

	capture := &captureProvider{}
	orch.construct = func(ep provider.Endpoint, opts provider.Options) (provider.Provider, error) {
		return capture, nil
	}

	id := orch.Start(context.Background(), Request{
		Text:    "explain this",
		Context: map[string]string{"file": "main.go"},
	})
	sink.waitDone(t, id)

	capture.mu.Lock()
	msgs := capture.req.Messages
	capture.mu.Unlock()

	require.NotEmpty(t, msgs)
	require.Equal(t, model.RoleSystem, msgs[0].Role)
	assert.True(t, strings.Contains(msgs[0].Content, "You are terse."))
	assert.True(t, strings.Contains(msgs[0].Content, "file: main.go"))
	assert.Equal(t, model.RoleUser, msgs[len(msgs)-1].Role)
}

func TestOrchestrator_ModelOverridePrecedence(t *testing.T) {
	sink := newMemorySink()
	resolver := ResolverFunc(func(ctx context.Context) (provider.Endpoint, model.GenerationConfig, error) {
		return provider.Endpoint{Kind: provider.KindMock}, model.GenerationConfig{Model: "resolved-model"}, nil
	})
	orch := NewOrchestrator(resolver, sink, provider.Options{})

	capture := &captureProvider{}
	orch.construct = func(ep provider.Endpoint, opts provider.Options) (provider.Provider, error) {
		return capture, nil
	}

	id := orch.Start(context.Background(), Request{Text: "hi", Model: "per-request-model"})
	sink.waitDone(t, id)

	capture.mu.Lock()
	got := capture.req.Config.Model
	capture.mu.Unlock()
	assert.Equal(t, "per-request-model", got)
}
