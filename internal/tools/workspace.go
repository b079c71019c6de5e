// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools implements the workspace file tools the agent backend can
// invoke: read, diff preview, diff apply, and write. Every mutating
// operation is gated on an explicit confirmation callback before anything
// on disk changes.
package tools

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/sidechat/internal/diff"
)

// =============================================================================
// CONFIRMATION
// =============================================================================

// Confirmer decides whether a mutating tool action may proceed. action is
// one of "apply" or "write"; preview is the diff or content about to land.
// A nil Confirmer denies everything.
type Confirmer func(action, path, preview string) bool

// AllowAll returns a Confirmer that approves every action. Test use only.
func AllowAll() Confirmer {
	return func(action, path, preview string) bool { return true }
}

// =============================================================================
// PATH SAFETY
// =============================================================================

// sensitivePatterns are path fragments that the tools refuse to touch in
// either direction. They commonly hold credentials or secrets.
var sensitivePatterns = []string{
	".env",
	".npmrc",
	".pypirc",
	".netrc",
	".git-credentials",
	".aws/credentials",
	".aws/config",
	".kube/config",
	".ssh/",
	"id_rsa",
	"id_ed25519",
	"id_ecdsa",
	"id_dsa",
	"authorized_keys",
	".pem",
	".key",
	".p12",
	".pfx",
}

// isSensitivePath reports whether a cleaned path matches the denylist.
func isSensitivePath(path string) bool {
	lower := strings.ToLower(filepath.ToSlash(path))
	base := filepath.Base(lower)
	for _, pat := range sensitivePatterns {
		if strings.Contains(lower, pat) || base == strings.TrimPrefix(pat, ".") {
			return true
		}
	}
	return false
}

// MaxReadSize caps how much of a file the read tool returns (256KB).
const MaxReadSize = 256 * 1024

// =============================================================================
// WORKSPACE
// =============================================================================

// Workspace exposes the file tools rooted at a single directory. Paths are
// resolved against the root and confined to it.
type Workspace struct {
	root    string
	confirm Confirmer

	mu     sync.Mutex
	staged map[string]string // proposed content keyed by resolved path
}

// NewWorkspace creates a workspace rooted at root. A nil confirmer denies
// all mutating actions.
func NewWorkspace(root string, confirm Confirmer) *Workspace {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &Workspace{
		root:    abs,
		confirm: confirm,
		staged:  make(map[string]string),
	}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// resolve confines path to the workspace root and applies the sensitive
// denylist. Returns the absolute path and whether it is usable.
func (w *Workspace) resolve(path string) (string, bool) {
	if path == "" || isSensitivePath(path) {
		return "", false
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(w.root, path)
	}
	abs = filepath.Clean(abs)
	if abs != w.root && !strings.HasPrefix(abs, w.root+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

// =============================================================================
// TOOL OPERATIONS
// =============================================================================

// Read returns a file's contents, capped at MaxReadSize. The second return
// is false when the file is absent, unreadable, or outside the workspace.
func (w *Workspace) Read(path string) (string, bool) {
	abs, ok := w.resolve(path)
	if !ok {
		return "", false
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxReadSize))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Stage records proposed content for a path. The next ProduceDiff for that
// path previews it and the next ApplyDiff lands it.
func (w *Workspace) Stage(path, content string) {
	abs, ok := w.resolve(path)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.staged[abs] = content
}

// ProduceDiff returns a unified diff between the file on disk and its staged
// content. The second return is false when nothing is staged for the path or
// the staged content matches the disk content.
func (w *Workspace) ProduceDiff(path string) (string, bool) {
	abs, ok := w.resolve(path)
	if !ok {
		return "", false
	}

	w.mu.Lock()
	proposed, staged := w.staged[abs]
	w.mu.Unlock()
	if !staged {
		return "", false
	}

	current, _ := w.Read(path)
	if !diff.HasChanges(current, proposed) {
		return "", false
	}
	return diff.Unified(path, current, proposed), true
}

// ApplyDiff writes the staged content for a path after the user confirms
// the shown diff. Returns whether the change was confirmed and applied.
func (w *Workspace) ApplyDiff(ctx context.Context, path, diffText string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	abs, ok := w.resolve(path)
	if !ok {
		return false, nil
	}

	w.mu.Lock()
	proposed, staged := w.staged[abs]
	w.mu.Unlock()
	if !staged {
		return false, nil
	}

	if w.confirm == nil || !w.confirm("apply", path, diffText) {
		log.Debug().Str("path", path).Msg("diff apply declined")
		return false, nil
	}

	if err := writeFile(abs, proposed, false); err != nil {
		return false, err
	}

	w.mu.Lock()
	delete(w.staged, abs)
	w.mu.Unlock()
	return true, nil
}

// Write writes or appends text to a file after the user confirms the
// content. Returns whether the change was confirmed and applied.
func (w *Workspace) Write(ctx context.Context, path, text string, appendTo bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	abs, ok := w.resolve(path)
	if !ok {
		return false, nil
	}

	action := "write"
	if appendTo {
		action = "append"
	}
	if w.confirm == nil || !w.confirm(action, path, text) {
		log.Debug().Str("path", path).Msg("write declined")
		return false, nil
	}

	if err := writeFile(abs, text, appendTo); err != nil {
		return false, err
	}
	return true, nil
}

// writeFile creates parent directories and writes or appends content.
func writeFile(abs, content string, appendTo bool) error {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendTo {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(abs, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(content)
	return err
}
