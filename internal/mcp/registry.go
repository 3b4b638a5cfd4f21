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
	"encoding/json"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// toolNameSeparator joins server and tool into a qualified tool name.
// Server names are validated to never contain it, so the split is
// unambiguous even when a tool name itself contains "__".
const toolNameSeparator = "__"

// ServerSpec describes how to connect one tool server.
type ServerSpec struct {
	// Name is the unique registry key for this server.
	Name string
	// Command is the executable to run.
	Command string
	// Args are the command-line arguments.
	Args []string
	// Env are KEY=VALUE environment variables for the child.
	Env []string
	// Timeout bounds each request to this server (optional).
	Timeout time.Duration
}

// equal reports whether two specs describe the same connection. Used by
// Sync to decide whether a configured server needs a restart.
func (s ServerSpec) equal(o ServerSpec) bool {
	return s.Name == o.Name &&
		s.Command == o.Command &&
		s.Timeout == o.Timeout &&
		slices.Equal(s.Args, o.Args) &&
		slices.Equal(s.Env, o.Env)
}

// ServerStatus is a point-in-time snapshot of one connection.
type ServerStatus struct {
	Name        string         `json:"name"`
	Command     string         `json:"command"`
	Pid         int            `json:"pid"`
	Alive       bool           `json:"alive"`
	ToolCount   int            `json:"toolCount"`
	ServerInfo  Implementation `json:"serverInfo"`
	ConnectedAt time.Time      `json:"connectedAt"`
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Launcher spawns child processes (defaults to ExecLauncher).
	Launcher Launcher
	// Logger is used for structured logging (optional).
	Logger *slog.Logger
	// Capture receives every server's stderr (optional; one is created
	// when nil so captured logs are always available).
	Capture *LogCapture
}

// Registry manages connections to multiple tool servers under unique
// names and aggregates their catalogs into one namespace-qualified tool
// list. All methods are safe for concurrent use.
type Registry struct {
	launcher Launcher
	logger   *slog.Logger
	capture  *LogCapture

	mu       sync.RWMutex
	conns    map[string]*Conn
	specs    map[string]ServerSpec
	reserved map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	launcher := cfg.Launcher
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	capture := cfg.Capture
	if capture == nil {
		capture = NewLogCapture()
	}
	return &Registry{
		launcher: launcher,
		logger:   logger,
		capture:  capture,
		conns:    make(map[string]*Conn),
		specs:    make(map[string]ServerSpec),
		reserved: make(map[string]bool),
	}
}

// Add spawns, handshakes, and registers a server under its name. A name
// that is already connected (or mid-connection) is rejected outright with
// ALREADY_CONNECTED; the existing connection is never displaced. If the
// handshake fails, the spawned process is shut down before the error is
// returned, so no orphan child survives a failed Add.
func (r *Registry) Add(ctx context.Context, spec ServerSpec) error {
	if strings.Contains(spec.Name, toolNameSeparator) {
		return ErrValidation("server name must not contain " + toolNameSeparator)
	}

	// Reserve the name before spawning so two concurrent Adds of the same
	// name cannot both launch a child.
	r.mu.Lock()
	if _, ok := r.conns[spec.Name]; ok {
		r.mu.Unlock()
		return ErrAlreadyConnected(spec.Name)
	}
	if r.reserved[spec.Name] {
		r.mu.Unlock()
		return ErrAlreadyConnected(spec.Name)
	}
	r.reserved[spec.Name] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.reserved, spec.Name)
		r.mu.Unlock()
	}()

	conn, err := NewConn(ConnConfig{
		Name:     spec.Name,
		Command:  spec.Command,
		Args:     spec.Args,
		Env:      spec.Env,
		Timeout:  spec.Timeout,
		Launcher: r.launcher,
		Logger:   r.logger,
		Capture:  r.capture,
	})
	if err != nil {
		return err
	}

	if err := conn.Initialize(ctx); err != nil {
		// The child spawned but never became a usable peer.
		_ = conn.Close()
		r.capture.Remove(spec.Name)
		return err
	}

	r.mu.Lock()
	r.conns[spec.Name] = conn
	r.specs[spec.Name] = spec
	r.mu.Unlock()

	connectedServers.Inc()
	r.logger.Info("mcp server connected",
		"server", spec.Name,
		"command", spec.Command,
		"tools", len(conn.Tools()),
	)
	return nil
}

// Remove disconnects a server and drops it from the registry. Its tools
// disappear from the aggregated catalog immediately; in-flight requests
// fail with CONNECTION_CLOSED when the child's stream shuts.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	conn, ok := r.conns[name]
	if ok {
		delete(r.conns, name)
		delete(r.specs, name)
	}
	r.mu.Unlock()

	if !ok {
		return ErrServerNotFound(name)
	}

	err := conn.Close()
	r.capture.Remove(name)
	connectedServers.Dec()
	r.logger.Info("mcp server disconnected", "server", name)
	return err
}

// Get returns the live connection for a name.
func (r *Registry) Get(name string) (*Conn, error) {
	r.mu.RLock()
	conn, ok := r.conns[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrServerNotFound(name)
	}
	return conn, nil
}

// Servers returns the connected server names, sorted.
func (r *Registry) Servers() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// ListTools aggregates every connected server's catalog under qualified
// names ("<server>__<tool>"), sorted for deterministic output. Identical
// tool names on different servers coexist; they differ in qualified name.
func (r *Registry) ListTools() []ToolRecord {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	var records []ToolRecord
	for _, conn := range conns {
		for _, tool := range conn.Tools() {
			records = append(records, ToolRecord{
				QualifiedName: conn.Name() + toolNameSeparator + tool.Name,
				Name:          tool.Name,
				Server:        conn.Name(),
				Description:   tool.Description,
				InputSchema:   tool.InputSchema,
			})
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].QualifiedName < records[j].QualifiedName
	})
	return records
}

// SplitToolName splits a qualified tool name into server and tool. The
// split is on the first separator: server names never contain it, tool
// names may.
func SplitToolName(qualified string) (server, tool string, ok bool) {
	return strings.Cut(qualified, toolNameSeparator)
}

// Call routes a qualified tool name to its owning server. An unknown
// server fails with SERVER_NOT_FOUND before any I/O happens; an unknown
// tool on a known server is the server's call to reject.
func (r *Registry) Call(ctx context.Context, qualified string, arguments map[string]any) (json.RawMessage, error) {
	server, tool, ok := SplitToolName(qualified)
	if !ok || server == "" || tool == "" {
		return nil, ErrValidation("tool name must be qualified as <server>" + toolNameSeparator + "<tool>")
	}
	conn, err := r.Get(server)
	if err != nil {
		return nil, err
	}
	return conn.CallTool(ctx, tool, arguments)
}

// Ping checks that a named server is still responsive.
func (r *Registry) Ping(ctx context.Context, name string) error {
	conn, err := r.Get(name)
	if err != nil {
		return err
	}
	return conn.Ping(ctx)
}

// Logs returns up to lines captured stderr entries for a server, oldest
// first. Unlike Get, this works even after the server crashed, as long as
// it has not been removed.
func (r *Registry) Logs(name string, lines int) []LogEntry {
	return r.capture.Get(name, lines)
}

// Status snapshots every connection, sorted by name.
func (r *Registry) Status() []ServerStatus {
	r.mu.RLock()
	statuses := make([]ServerStatus, 0, len(r.conns))
	for name, conn := range r.conns {
		alive := true
		select {
		case <-conn.Done():
			alive = false
		default:
		}
		statuses = append(statuses, ServerStatus{
			Name:        name,
			Command:     r.specs[name].Command,
			Pid:         conn.Pid(),
			Alive:       alive,
			ToolCount:   len(conn.Tools()),
			ServerInfo:  conn.ServerInfo(),
			ConnectedAt: conn.ConnectedAt(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

// Sync reconciles the registry against a desired set of specs: new
// entries are connected, removed entries are disconnected, and entries
// whose spec changed are restarted. Unchanged servers are left alone, so
// their in-flight requests survive a config reload. Errors are collected
// per server; one bad entry never blocks the rest.
func (r *Registry) Sync(ctx context.Context, desired []ServerSpec) map[string]error {
	want := make(map[string]ServerSpec, len(desired))
	for _, spec := range desired {
		want[spec.Name] = spec
	}

	r.mu.RLock()
	have := make(map[string]ServerSpec, len(r.specs))
	for name, spec := range r.specs {
		have[name] = spec
	}
	r.mu.RUnlock()

	errs := make(map[string]error)

	for name, current := range have {
		spec, keep := want[name]
		if keep && current.equal(spec) {
			continue
		}
		if err := r.Remove(name); err != nil {
			errs[name] = err
		}
	}

	for name, spec := range want {
		if current, ok := have[name]; ok && current.equal(spec) {
			continue
		}
		if err := r.Add(ctx, spec); err != nil {
			errs[name] = err
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// CloseAll disconnects every server. The first error is returned; the
// remaining connections are still closed.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.specs = make(map[string]ServerSpec)
	r.mu.Unlock()

	var first error
	for name, conn := range conns {
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
		r.capture.Remove(name)
		connectedServers.Dec()
	}
	return first
}
