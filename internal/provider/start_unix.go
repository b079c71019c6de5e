// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

package provider

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// findServerExecutable searches for the ollama binary in PATH and common
// install locations on Unix/macOS.
func findServerExecutable() (string, error) {
	if path, err := exec.LookPath("ollama"); err == nil {
		return path, nil
	}

	candidates := []string{
		"/usr/local/bin/ollama",
		"/usr/bin/ollama",
		"/opt/ollama/ollama",
	}
	if home := os.Getenv("HOME"); home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin", "ollama"),
			filepath.Join(home, "bin", "ollama"),
		)
	}
	candidates = append(candidates, "/Applications/Ollama.app/Contents/Resources/ollama")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("ollama executable not found in PATH or common install directories")
}

// startLocalServer spawns `ollama serve` detached from this process and
// polls checkReady until the server answers or the startup window elapses.
func startLocalServer(ctx context.Context, checkReady func(context.Context) error) error {
	path, err := findServerExecutable()
	if err != nil {
		return err
	}

	cmd := exec.Command(path, "serve")
	cmd.Env = os.Environ()
	// New process group so the server outlives this process.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ollama (%s): %w", path, err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	return waitForServer(ctx, checkReady)
}

// waitForServer polls the readiness check for up to serverStartWindow.
func waitForServer(ctx context.Context, checkReady func(context.Context) error) error {
	const (
		serverStartWindow = 10 * time.Second
		pollInterval      = 500 * time.Millisecond
	)

	deadline := time.Now().Add(serverStartWindow)
	var lastErr error

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		probeCtx, cancel := context.WithTimeout(ctx, pollInterval)
		lastErr = checkReady(probeCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return fmt.Errorf("ollama did not become ready: %w", lastErr)
}
