// sidechat - streaming chat orchestration core for sidebar chat panels.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/sidechat/internal/bridge"
	"github.com/jeranaias/sidechat/internal/chat"
	"github.com/jeranaias/sidechat/internal/config"
	"github.com/jeranaias/sidechat/internal/provider"
	"github.com/jeranaias/sidechat/internal/tools"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func main() {
	var (
		configPath   = flag.String("config", "", "config file path (default ~/.sidechat/config.toml)")
		providerName = flag.String("provider", "", "override the configured provider kind")
		modelName    = flag.String("model", "", "override the configured model")
		bridgeMode   = flag.Bool("bridge", false, "speak line-delimited JSON on stdin/stdout instead of the REPL")
		showVersion  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("sidechat %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	setupLogging()

	manager, err := config.NewManager(*configPath, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("config error: "+err.Error()))
		os.Exit(1)
	}
	if *providerName != "" {
		if err := manager.SetProvider(*providerName); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := manager.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("config watcher stopped")
		}
	}()

	if *bridgeMode {
		runBridge(ctx, manager)
		return
	}
	runREPL(ctx, manager, *modelName)
}

// setupLogging configures zerolog on stderr. Logging is off unless
// SIDECHAT_LOG names a level, so it never interleaves with streamed output.
func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level := zerolog.Disabled
	if v := os.Getenv("SIDECHAT_LOG"); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
}

// =============================================================================
// BRIDGE MODE
// =============================================================================

// runBridge speaks the webview's JSON message protocol over stdio. Mutating
// agent tools stay denied: there is no interactive confirmation channel in
// this mode, so confirmation is the embedding host's job.
func runBridge(ctx context.Context, manager *config.Manager) {
	snap := manager.Snapshot()
	b := bridge.New(os.Stdout)
	orch := chat.NewOrchestrator(manager, b, provider.Options{
		Workspace: tools.NewWorkspace(snap.Agent.WorkspaceRoot, nil),
		AutoStart: snap.Ollama.AutoStart,
	})

	if err := b.Run(ctx, os.Stdin, orch); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("bridge: "+err.Error()))
		os.Exit(1)
	}
}

// =============================================================================
// REPL MODE
// =============================================================================

// consoleSink renders orchestrator events to the terminal, batching deltas
// through a StreamBuffer so slow streams still paint smoothly.
type consoleSink struct {
	mu   sync.Mutex
	buf  *chat.StreamBuffer
	acc  *provider.Accumulator
	done chan struct{}
}

func newConsoleSink(batchSize int, flushInterval time.Duration) *consoleSink {
	return &consoleSink{buf: chat.NewStreamBuffer(batchSize, flushInterval)}
}

// begin arms the sink for one generation and returns its done channel.
func (s *consoleSink) begin() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	s.acc = provider.NewAccumulator()
	s.done = make(chan struct{})
	return s.done
}

func (s *consoleSink) Delta(handleID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acc != nil {
		s.acc.Add(text)
	}
	s.buf.Write(text)
}

func (s *consoleSink) Done(handleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
}

func (s *consoleSink) Error(handleID, message string) {
	fmt.Println(errorStyle.Render("error: " + message))
}

// flush prints any batch-ready content; force drains everything.
func (s *consoleSink) flush(force bool) {
	var content string
	var ok bool
	if force {
		content, ok = s.buf.ForceFlush()
	} else {
		content, ok = s.buf.Flush()
	}
	if ok {
		fmt.Print(content)
	}
}

func (s *consoleSink) stats() provider.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acc == nil {
		return provider.Stats{}
	}
	return s.acc.Stats()
}

// runREPL drives the interactive prompt loop.
func runREPL(ctx context.Context, manager *config.Manager, modelOverride string) {
	snap := manager.Snapshot()
	sink := newConsoleSink(snap.UI.BatchSize, time.Duration(snap.UI.FlushIntervalMs)*time.Millisecond)

	orch := chat.NewOrchestrator(manager, sink, provider.Options{
		Workspace: tools.NewWorkspace(snap.Agent.WorkspaceRoot, terminalConfirmer()),
		AutoStart: snap.Ollama.AutoStart,
	})

	// Ctrl-C stops the in-flight generation rather than the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			orch.Stop()
		}
	}()

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()

	fmt.Println(statusStyle.Render("sidechat " + Version + " — /provider <kind>, /stop, /quit"))

	for {
		input, err := line.Prompt(promptStyle.Render("> "))
		if err != nil {
			// Ctrl-C or Ctrl-D at the prompt exits.
			fmt.Println()
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := replCommand(manager, orch, input); quit {
				return
			}
			continue
		}

		streamOnce(ctx, orch, sink, chat.Request{Text: input, Model: modelOverride})
	}
}

// replCommand handles slash commands. Returns true to exit the REPL.
func replCommand(manager *config.Manager, orch *chat.Orchestrator, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		orch.Stop()
		return true
	case "/stop":
		orch.Stop()
	case "/provider":
		if len(fields) < 2 {
			fmt.Println(statusStyle.Render("provider: " + manager.Snapshot().Provider))
			return false
		}
		if err := manager.SetProvider(fields[1]); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return false
		}
		fmt.Println(statusStyle.Render("provider set to " + fields[1]))
	default:
		fmt.Println(errorStyle.Render("unknown command: " + fields[0]))
	}
	return false
}

// streamOnce sends one message and renders events until the generation's
// terminal Done.
func streamOnce(ctx context.Context, orch *chat.Orchestrator, sink *consoleSink, req chat.Request) {
	done := sink.begin()
	orch.Start(ctx, req)

	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sink.flush(false)
		case <-done:
			sink.flush(true)
			fmt.Println()
			fmt.Println(statusStyle.Render(sink.stats().Format()))
			return
		case <-ctx.Done():
			sink.flush(true)
			fmt.Println()
			return
		}
	}
}

// terminalConfirmer prompts on the terminal before any mutating agent tool
// runs. Streaming is paused inside the tool step while this waits.
func terminalConfirmer() tools.Confirmer {
	return func(action, path, preview string) bool {
		fmt.Println()
		fmt.Println(statusStyle.Render(fmt.Sprintf("agent wants to %s %s:", action, path)))
		fmt.Println(preview)
		fmt.Print(promptStyle.Render("allow? [y/N] "))

		reader := bufio.NewReader(os.Stdin)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}
