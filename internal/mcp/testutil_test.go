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
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/kbraxton/toolhost/internal/jsonrpc"
)

// scriptedServer is an in-memory protocol peer. It parses everything the
// connection writes and exposes it on a channel; tests (or an installed
// handler) answer by writing raw lines back.
type scriptedServer struct {
	stdinR  *io.PipeReader // connection's writes arrive here
	stdinW  *io.PipeWriter // handed to the connection as stdin
	stdoutR *io.PipeReader // handed to the connection as stdout
	stdoutW *io.PipeWriter // server responses go here
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	incoming chan jsonrpc.Message

	killed   atomic.Bool
	stopOnce sync.Once

	writeMu sync.Mutex
}

func newScriptedServer() *scriptedServer {
	s := &scriptedServer{
		incoming: make(chan jsonrpc.Message, 64),
	}
	s.stdinR, s.stdinW = io.Pipe()
	s.stdoutR, s.stdoutW = io.Pipe()
	s.stderrR, s.stderrW = io.Pipe()

	go s.readIncoming()
	return s
}

// readIncoming parses the connection's writes into messages.
func (s *scriptedServer) readIncoming() {
	scanner := bufio.NewScanner(s.stdinR)
	for scanner.Scan() {
		var msg jsonrpc.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		s.incoming <- msg
	}
	close(s.incoming)
}

func (s *scriptedServer) writeRaw(line string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, _ = s.stdoutW.Write([]byte(line + "\n"))
}

func (s *scriptedServer) respondResult(id int64, result any) {
	payload, _ := json.Marshal(result)
	s.writeRaw(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, payload))
}

func (s *scriptedServer) respondError(id int64, code int, message string) {
	msg, _ := json.Marshal(message)
	s.writeRaw(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":%d,"message":%s}}`, id, code, msg))
}

func (s *scriptedServer) stderrLine(line string) {
	_, _ = s.stderrW.Write([]byte(line + "\n"))
}

// closeStdout simulates the child dying: the connection's reader hits EOF.
func (s *scriptedServer) closeStdout() {
	_ = s.stdoutW.Close()
	_ = s.stderrW.Close()
}

func (s *scriptedServer) stop() {
	s.stopOnce.Do(func() {
		_ = s.stdoutW.Close()
		_ = s.stderrW.Close()
		_ = s.stdinW.Close()
		_ = s.stdinR.Close()
	})
}

// fakeProcess adapts a scriptedServer to the Process interface.
type fakeProcess struct {
	s *scriptedServer
}

func (p *fakeProcess) Stdin() io.WriteCloser { return p.s.stdinW }
func (p *fakeProcess) Stdout() io.Reader     { return p.s.stdoutR }
func (p *fakeProcess) Stderr() io.Reader     { return p.s.stderrR }
func (p *fakeProcess) Pid() int              { return 0 }
func (p *fakeProcess) Wait() error           { return nil }

func (p *fakeProcess) Kill() error {
	p.s.killed.Store(true)
	p.s.stop()
	return nil
}

// handlerFunc answers one incoming message on behalf of a scripted server.
type handlerFunc func(s *scriptedServer, msg jsonrpc.Message)

// fakeLauncher hands out scripted servers instead of real processes. When
// a handler is set, each server answers incoming messages with it.
type fakeLauncher struct {
	handler handlerFunc

	mu       sync.Mutex
	servers  []*scriptedServer
	launches [][]string
}

func (l *fakeLauncher) Launch(command string, args []string, env []string) (Process, error) {
	s := newScriptedServer()

	l.mu.Lock()
	l.servers = append(l.servers, s)
	l.launches = append(l.launches, append([]string{command}, args...))
	handler := l.handler
	l.mu.Unlock()

	if handler != nil {
		go func() {
			for msg := range s.incoming {
				handler(s, msg)
			}
		}()
	}
	return &fakeProcess{s: s}, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

func (l *fakeLauncher) server(i int) *scriptedServer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.servers[i]
}

// mcpHandler implements a minimal well-behaved tool server: it answers the
// handshake, serves a fixed catalog, and echoes tool calls.
func mcpHandler(tools []Tool) handlerFunc {
	return func(s *scriptedServer, msg jsonrpc.Message) {
		if msg.ID == nil {
			return // notification, nothing to answer
		}
		switch msg.Method {
		case methodInitialize:
			s.respondResult(*msg.ID, InitializeResult{
				ProtocolVersion: ProtocolVersion,
				ServerInfo:      Implementation{Name: "scripted", Version: "1.0.0"},
			})
		case methodListTools:
			s.respondResult(*msg.ID, ListToolsResult{Tools: tools})
		case methodCallTool:
			var params CallToolParams
			_ = json.Unmarshal(msg.Params, &params)
			s.respondResult(*msg.ID, map[string]any{"echo": params.Name})
		case methodPing:
			s.respondResult(*msg.ID, map[string]any{})
		default:
			s.respondError(*msg.ID, jsonrpc.CodeMethodNotFound, "method not found")
		}
	}
}

// rawSchema is a no-constraints input schema for catalog fixtures.
var rawSchema = json.RawMessage(`{"type":"object"}`)
