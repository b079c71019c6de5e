// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/sidechat/internal/model"
	"github.com/jeranaias/sidechat/internal/provider"
)

// =============================================================================
// REQUEST AND RESOLUTION
// =============================================================================

// Request is the provider-agnostic "send" shape consumed from the
// presentation boundary.
type Request struct {
	Text string
	// Config overrides the resolved generation options for this request.
	Config *model.GenerationConfig
	// Context is an arbitrary key-value snapshot from the caller (editor
	// selection, file name, ...). Folded into the system prompt when the
	// resolved config carries one.
	Context map[string]string
	// Model overrides the resolved model for this request.
	Model string
}

// Resolver produces the endpoint and base generation options from the
// current settings snapshot. Resolution runs per generation — it may consult
// a secret store — and its failure is a configuration error: the stream is
// never opened.
type Resolver interface {
	Resolve(ctx context.Context) (provider.Endpoint, model.GenerationConfig, error)
}

// ResolverFunc adapts a func to Resolver.
type ResolverFunc func(ctx context.Context) (provider.Endpoint, model.GenerationConfig, error)

func (f ResolverFunc) Resolve(ctx context.Context) (provider.Endpoint, model.GenerationConfig, error) {
	return f(ctx)
}

// =============================================================================
// GENERATION HANDLE
// =============================================================================

// generation is one in-flight streaming request. The pointer itself is the
// identity token for late-callback suppression: IDs are only for consumer
// correlation, never compared.
type generation struct {
	id     string
	cancel context.CancelFunc
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator holds at most one live generation and relays its events to
// the sink. Construct one per consumer and pass it by reference; there is no
// package-level instance.
type Orchestrator struct {
	resolver Resolver
	sink     Sink
	opts     provider.Options

	// construct builds the provider for an endpoint; injectable for tests.
	construct func(provider.Endpoint, provider.Options) (provider.Provider, error)

	mu      sync.Mutex
	current *generation
}

// NewOrchestrator creates an orchestrator that resolves endpoints through
// resolver and emits events to sink. opts is forwarded to provider
// construction.
func NewOrchestrator(resolver Resolver, sink Sink, opts provider.Options) *Orchestrator {
	return &Orchestrator{
		resolver:  resolver,
		sink:      sink,
		opts:      opts,
		construct: provider.New,
	}
}

// Start begins a new generation and returns its handle ID immediately,
// before any network I/O. Any generation already live is cancelled
// synchronously — and its synthesized Done emitted — before the new
// resolution begins, so two providers never stream concurrently to the sink.
func (o *Orchestrator) Start(ctx context.Context, req Request) string {
	genCtx, cancel := context.WithCancel(ctx)
	gen := &generation{id: uuid.NewString(), cancel: cancel}

	o.mu.Lock()
	if old := o.current; old != nil {
		old.cancel()
		o.sink.Done(old.id)
		log.Debug().Str("old", old.id).Str("new", gen.id).Msg("generation superseded")
	}
	o.current = gen
	o.mu.Unlock()

	go o.run(genCtx, gen, req)
	return gen.id
}

// Stop cancels the live generation, aborting its transport, and emits its
// terminal Done (the cancelled provider will not emit one). No-op when idle.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return
	}
	gen := o.current
	o.current = nil
	gen.cancel()
	o.sink.Done(gen.id)
	log.Debug().Str("handle", gen.id).Msg("generation stopped")
}

// Active reports whether a generation is currently live.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// run resolves the endpoint and drives the provider stream. It owns the
// conversion of failures into Error + Done pairs.
func (o *Orchestrator) run(ctx context.Context, gen *generation, req Request) {
	ep, base, err := o.resolver.Resolve(ctx)
	if err != nil {
		o.fail(gen, err)
		return
	}

	cfg := base.Merge(req.Config)
	if req.Model != "" {
		cfg.Model = req.Model
	}

	p, err := o.construct(ep, o.opts)
	if err != nil {
		o.fail(gen, err)
		return
	}

	preq := provider.Request{
		Messages: model.BuildMessages(req.Text, systemPrompt(cfg, req.Context)),
		Config:   cfg,
	}

	err = p.Stream(ctx, preq, provider.Callbacks{
		OnDelta: func(text string) { o.emitDelta(gen, text) },
		OnDone:  func() { o.finish(gen) },
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			// Stop or supersede already emitted the terminal Done.
			return
		}
		o.fail(gen, err)
	}
}

// systemPrompt folds the request context snapshot into the configured
// system prompt.
func systemPrompt(cfg model.GenerationConfig, reqContext map[string]string) string {
	if len(reqContext) == 0 {
		return cfg.SystemPrompt
	}
	prompt := cfg.SystemPrompt
	for k, v := range reqContext {
		if prompt != "" {
			prompt += "\n"
		}
		prompt += k + ": " + v
	}
	return prompt
}

// emitDelta forwards a delta when gen is still the tracked generation.
// Late callbacks from a superseded or stopped generation are dropped here
// by pointer identity.
func (o *Orchestrator) emitDelta(gen *generation, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != gen {
		return
	}
	o.sink.Delta(gen.id, text)
}

// finish emits the terminal Done and releases the handle, unless gen was
// already superseded or stopped (its Done was emitted on that path).
func (o *Orchestrator) finish(gen *generation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != gen {
		return
	}
	o.current = nil
	gen.cancel()
	o.sink.Done(gen.id)
}

// fail emits Error then the terminal Done for gen, so the consumer never
// stays in a streaming state after a failure.
func (o *Orchestrator) fail(gen *generation, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != gen {
		return
	}
	o.current = nil
	gen.cancel()
	log.Debug().Err(err).Str("handle", gen.id).Msg("generation failed")
	o.sink.Error(gen.id, err.Error())
	o.sink.Done(gen.id)
}
