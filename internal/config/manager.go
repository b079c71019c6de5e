// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/jeranaias/sidechat/internal/model"
	"github.com/jeranaias/sidechat/internal/provider"
)

// =============================================================================
// MANAGER
// =============================================================================

// Manager holds the current settings snapshot and resolves endpoints from
// it. With Watch running, file edits are picked up so each generation sees
// current settings. Manager implements the orchestrator's Resolver contract.
type Manager struct {
	path  string
	store SecretStore

	mu  sync.RWMutex
	cfg *Config
}

// NewManager loads the config at path (empty means the default location).
func NewManager(path string, store SecretStore) (*Manager, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, store: store, cfg: cfg}, nil
}

// Snapshot returns the current configuration value.
func (m *Manager) Snapshot() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// SetProvider switches the active provider kind in the current snapshot.
func (m *Manager) SetProvider(kind string) error {
	if _, err := provider.ParseKind(kind); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Provider = kind
	return nil
}

// Resolve implements the orchestrator's Resolver using the current snapshot.
func (m *Manager) Resolve(ctx context.Context) (provider.Endpoint, model.GenerationConfig, error) {
	snap := m.Snapshot()
	return snap.Resolve(ctx, m.store)
}

// Reload re-reads the config file. The previous snapshot stays active when
// loading fails.
func (m *Manager) Reload() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// =============================================================================
// FILE WATCHING
// =============================================================================

// Watch reloads the snapshot whenever the config file changes, until ctx is
// cancelled. The parent directory is watched because editors typically
// replace the file rather than write it in place.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := m.Reload(); err != nil {
				log.Warn().Err(err).Msg("config reload failed, keeping previous settings")
				continue
			}
			log.Debug().Str("path", m.path).Msg("config reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}
