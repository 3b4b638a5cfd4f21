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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbraxton/toolhost/internal/jsonrpc"
)

// clientVersion is reported in the initialize handshake's clientInfo.
const clientVersion = "0.1.0"

// DefaultRequestTimeout bounds how long a request waits for its response.
const DefaultRequestTimeout = 30 * time.Second

// maxStderrLine caps buffered stderr lines from a misbehaving server.
const maxStderrLine = 1024 * 1024

// ConnConfig configures a connection to one MCP tool server.
type ConnConfig struct {
	// Name is the unique identifier for this server.
	Name string

	// Command is the executable to run.
	Command string

	// Args are the command-line arguments.
	Args []string

	// Env are KEY=VALUE environment variables appended to the host's.
	Env []string

	// Timeout bounds each request (defaults to DefaultRequestTimeout).
	Timeout time.Duration

	// Launcher spawns the child process (defaults to ExecLauncher).
	Launcher Launcher

	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// Capture receives the server's stderr lines (optional).
	Capture *LogCapture
}

// Conn is a request/response RPC peer backed by a spawned tool server.
//
// One goroutine reads the child's stdout and resolves pending requests by
// id; another drains stderr into diagnostics. Any number of callers may
// issue requests concurrently: outgoing writes are serialized by a write
// lock so lines never interleave, and responses are matched by id, so
// out-of-order delivery is handled correctly.
type Conn struct {
	name       string
	instanceID string
	proc       Process
	stdin      io.WriteCloser
	timeout    time.Duration
	logger     *slog.Logger
	capture    *LogCapture

	// writeMu serializes whole-line writes to the child's stdin.
	writeMu sync.Mutex

	// nextID allocates request ids, starting at 1, never reused.
	nextID atomic.Int64

	// pendingMu guards pending and closed. Held only for map operations,
	// never across an await.
	pendingMu sync.Mutex
	pending   map[int64]chan *jsonrpc.Message
	closed    bool

	// stateMu guards the cached catalog and handshake metadata.
	stateMu     sync.RWMutex
	tools       []Tool
	serverInfo  Implementation
	connectedAt time.Time

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewConn validates the spawn against the security gate, starts the child
// process, and begins the background read loops. The returned connection is
// usable immediately; the handshake is a separate step (Initialize) so the
// caller decides how to treat a peer that spawns but does not speak MCP.
func NewConn(cfg ConnConfig) (*Conn, error) {
	if cfg.Name == "" {
		return nil, ErrValidation("server name is required")
	}
	if cfg.Command == "" {
		return nil, ErrValidation("command is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// The one true gate call site. Every spawn passes through here.
	if err := CheckSpawn(cfg.Command, cfg.Args); err != nil {
		spawnRejections.Inc()
		logger.Error("spawn blocked by security gate",
			"server", cfg.Name,
			"command", cfg.Command,
			"error", err,
		)
		return nil, err
	}

	launcher := cfg.Launcher
	if launcher == nil {
		launcher = ExecLauncher{}
	}

	proc, err := launcher.Launch(cfg.Command, cfg.Args, cfg.Env)
	if err != nil {
		return nil, ErrSpawnFailed(cfg.Command, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c := &Conn{
		name:       cfg.Name,
		instanceID: uuid.NewString(),
		proc:       proc,
		stdin:      proc.Stdin(),
		timeout:    timeout,
		logger:     logger,
		capture:    cfg.Capture,
		pending:    make(map[int64]chan *jsonrpc.Message),
		done:       make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readLoop(proc.Stdout())
	go c.stderrLoop(proc.Stderr())

	logger.Debug("mcp server spawned",
		"server", c.name,
		"conn_id", c.instanceID,
		"command", cfg.Command,
		"pid", proc.Pid(),
	)

	return c, nil
}

// Name returns the server name this connection is keyed under.
func (c *Conn) Name() string {
	return c.name
}

// Done is closed when the child's stdout reaches end-of-stream, whether
// from shutdown or the process dying on its own.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Request sends a JSON-RPC request and waits for its response, bounded by
// the connection's timeout. Responses are matched by id, so concurrent
// callers each receive exactly the reply to their own request even when
// the server answers out of order.
func (c *Conn) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan *jsonrpc.Message, 1)

	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		requestFailures.WithLabelValues(c.name, reasonClosed).Inc()
		return nil, ErrConnectionClosed(c.name)
	}
	c.pending[id] = ch
	c.pendingMu.Unlock()

	payload, err := json.Marshal(jsonrpc.NewRequest(method, params, id))
	if err != nil {
		c.dropPending(id)
		return nil, ErrValidation(fmt.Sprintf("marshal %s params: %v", method, err))
	}

	requestsTotal.WithLabelValues(c.name, method).Inc()
	if err := c.writeLine(payload); err != nil {
		c.dropPending(id)
		requestFailures.WithLabelValues(c.name, reasonTransport).Inc()
		return nil, ErrTransportWrite(c.name, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-ch:
		if !ok {
			// Reader loop hit end-of-stream and failed all pending slots.
			requestFailures.WithLabelValues(c.name, reasonClosed).Inc()
			return nil, ErrConnectionClosed(c.name)
		}
		if msg.Error != nil {
			requestFailures.WithLabelValues(c.name, reasonRemote).Inc()
			return nil, ErrRemote(c.name, method, msg.Error)
		}
		return msg.Result, nil

	case <-timer.C:
		// Remove the slot so a late answer is dropped, not misdelivered.
		c.dropPending(id)
		requestFailures.WithLabelValues(c.name, reasonTimeout).Inc()
		return nil, ErrRequestTimedOut(c.name, method, c.timeout)

	case <-ctx.Done():
		c.dropPending(id)
		requestFailures.WithLabelValues(c.name, reasonCanceled).Inc()
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget message: no id, no pending slot, no wait.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(jsonrpc.NewNotification(method, params))
	if err != nil {
		return ErrValidation(fmt.Sprintf("marshal %s params: %v", method, err))
	}
	if err := c.writeLine(payload); err != nil {
		requestFailures.WithLabelValues(c.name, reasonTransport).Inc()
		return ErrTransportWrite(c.name, err)
	}
	return nil
}

// Initialize performs the MCP handshake: the initialize request, the
// mandatory notifications/initialized notification, then tools/list. The
// cached tool catalog is replaced wholesale, never merged. On failure the
// connection is still alive; the caller decides whether to discard it.
func (c *Conn) Initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities: ClientCapabilities{
			Roots:    &RootsCapability{ListChanged: true},
			Sampling: &SamplingCapability{},
		},
		ClientInfo: Implementation{Name: clientName, Version: clientVersion},
	}

	raw, err := c.Request(ctx, methodInitialize, params)
	if err != nil {
		return ErrHandshakeFailed(c.name, "initialize", err)
	}
	var res InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ErrHandshakeFailed(c.name, "initialize", fmt.Errorf("decode result: %w", err))
	}

	// Must be a notification, never a request: the server does not reply.
	if err := c.Notify(ctx, methodInitialized, nil); err != nil {
		return ErrHandshakeFailed(c.name, "initialized", err)
	}

	raw, err = c.Request(ctx, methodListTools, nil)
	if err != nil {
		return ErrHandshakeFailed(c.name, "tools/list", err)
	}
	var lt ListToolsResult
	if err := json.Unmarshal(raw, &lt); err != nil {
		return ErrHandshakeFailed(c.name, "tools/list", fmt.Errorf("decode result: %w", err))
	}

	c.stateMu.Lock()
	c.serverInfo = res.ServerInfo
	c.tools = lt.Tools
	c.connectedAt = time.Now()
	c.stateMu.Unlock()

	c.logger.Info("mcp server initialized",
		"server", c.name,
		"conn_id", c.instanceID,
		"remote", res.ServerInfo.Name,
		"protocol", res.ProtocolVersion,
		"tools", len(lt.Tools),
	)

	return nil
}

// CallTool invokes a tool by its unqualified name. The result is the
// server-defined payload, returned verbatim.
func (c *Conn) CallTool(ctx context.Context, name string, arguments map[string]any) (json.RawMessage, error) {
	return c.Request(ctx, methodCallTool, CallToolParams{Name: name, Arguments: arguments})
}

// Ping checks that the server is still responsive.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.Request(ctx, methodPing, nil)
	return err
}

// Tools returns a copy of the cached tool catalog from the last successful
// tools/list.
func (c *Conn) Tools() []Tool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// ServerInfo returns the remote implementation reported at initialize.
func (c *Conn) ServerInfo() Implementation {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.serverInfo
}

// ConnectedAt returns when the handshake completed, or the zero time if it
// has not.
func (c *Conn) ConnectedAt() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connectedAt
}

// Pid returns the child's OS process id.
func (c *Conn) Pid() int {
	return c.proc.Pid()
}

// Close forcibly terminates the child and waits for both background loops
// to stop. Idempotent; safe to call even if the process already exited.
func (c *Conn) Close() error {
	var killErr error
	c.closeOnce.Do(func() {
		killErr = c.proc.Kill()
		_ = c.stdin.Close()
		c.wg.Wait()
		_ = c.proc.Wait()
		c.logger.Debug("mcp server shut down", "server", c.name, "conn_id", c.instanceID)
	})
	return killErr
}

// writeLine writes one complete message line under the transport-wide
// write lock, so concurrent callers' messages never interleave mid-line.
func (c *Conn) writeLine(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.stdin.Write(append(payload, '\n'))
	return err
}

// dropPending removes a completion slot, if still registered.
func (c *Conn) dropPending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// readLoop reads line-delimited JSON from the child's stdout and resolves
// pending requests. A malformed line is logged and dropped; it never
// aborts the loop or the connection. End-of-stream terminates the loop and
// fails every still-pending request with CONNECTION_CLOSED, so callers are
// not stranded waiting out their full timeout.
func (c *Conn) readLoop(r io.Reader) {
	defer c.wg.Done()
	defer c.failPending()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			c.dispatch([]byte(trimmed))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug("mcp stdout closed", "server", c.name, "conn_id", c.instanceID)
			} else {
				c.logger.Warn("mcp stdout read failed", "server", c.name, "error", err)
			}
			return
		}
	}
}

// dispatch parses one stdout line and routes it to its pending slot.
func (c *Conn) dispatch(data []byte) {
	var msg jsonrpc.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		malformedLines.WithLabelValues(c.name).Inc()
		c.logger.Warn("dropping unparseable line from mcp server",
			"server", c.name,
			"error", err,
		)
		return
	}

	if msg.Method != "" {
		// Server-initiated request or notification. Toolhost declares no
		// serviceable capabilities beyond the handshake, so these are
		// dropped rather than answered.
		c.logger.Debug("dropping server-initiated message",
			"server", c.name,
			"method", msg.Method,
		)
		return
	}

	if msg.ID == nil {
		malformedLines.WithLabelValues(c.name).Inc()
		c.logger.Warn("dropping response without id", "server", c.name)
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	c.pendingMu.Unlock()

	if !ok {
		// Stale (already timed out) or duplicate id.
		malformedLines.WithLabelValues(c.name).Inc()
		c.logger.Debug("dropping response with no pending request",
			"server", c.name,
			"id", *msg.ID,
		)
		return
	}

	ch <- &msg
}

// failPending marks the connection closed and fails every outstanding
// request. Runs exactly once, when the reader loop exits.
func (c *Conn) failPending() {
	c.pendingMu.Lock()
	c.closed = true
	stranded := len(c.pending)
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.pendingMu.Unlock()

	if stranded > 0 {
		c.logger.Warn("failing in-flight requests on stream closure",
			"server", c.name,
			"count", stranded,
		)
	}
	close(c.done)
}

// stderrLoop drains the child's stderr into diagnostics. It never affects
// protocol correctness and terminates silently on end-of-stream.
func (c *Conn) stderrLoop(r io.Reader) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.logger.Debug("mcp stderr", "server", c.name, "line", line)
		if c.capture != nil {
			c.capture.Add(c.name, line)
		}
	}
}
