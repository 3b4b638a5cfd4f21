// Copyright 2026 Kyle Braxton
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher monitors the servers configuration file and reconciles the
// registry when it changes. Editors typically write configs as a
// remove/rename/create sequence, so the watch is on the parent directory
// and events are debounced before a reload.
type ConfigWatcher struct {
	fsWatcher *fsnotify.Watcher
	registry  *Registry
	logger    *slog.Logger

	// path is the absolute path of the watched config file.
	path string

	// debounceDelay is the quiet period before a reload is triggered.
	debounceDelay time.Duration

	// mu protects pending.
	mu      sync.Mutex
	pending *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConfigWatcherConfig configures a ConfigWatcher.
type ConfigWatcherConfig struct {
	// Registry is reconciled against the config on every change.
	Registry *Registry

	// Path is the servers configuration file to watch.
	Path string

	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// DebounceDelay is the quiet period before reloading (defaults to 200ms).
	DebounceDelay time.Duration
}

// NewConfigWatcher creates and starts a watcher on the config file's
// directory.
func NewConfigWatcher(cfg ConfigWatcherConfig) (*ConfigWatcher, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounceDelay := cfg.DebounceDelay
	if debounceDelay == 0 {
		debounceDelay = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &ConfigWatcher{
		fsWatcher:     fsWatcher,
		registry:      cfg.Registry,
		logger:        logger,
		path:          absPath,
		debounceDelay: debounceDelay,
		ctx:           ctx,
		cancel:        cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	logger.Debug("watching servers config", "path", absPath)
	return w, nil
}

// processEvents filters directory events down to the config file and
// schedules debounced reloads.
func (w *ConfigWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

// scheduleReload resets the debounce timer. Only the last event in a burst
// triggers a reload.
func (w *ConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceDelay, w.reload)
}

// reload re-reads the config and reconciles the registry. An unreadable or
// invalid config leaves the running set untouched.
func (w *ConfigWatcher) reload() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("ignoring config reload", "path", w.path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error("ignoring invalid config reload", "path", w.path, "error", err)
		return
	}

	w.logger.Info("servers config changed, reconciling", "path", w.path)

	ctx, cancel := context.WithTimeout(w.ctx, time.Minute)
	defer cancel()

	if errs := w.registry.Sync(ctx, cfg.Specs(true)); errs != nil {
		for name, err := range errs {
			w.logger.Error("failed to reconcile mcp server",
				"server", name,
				"error", err,
			)
		}
	}
}

// Close stops the watcher. Any pending reload is canceled.
func (w *ConfigWatcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsWatcher.Close()
}
