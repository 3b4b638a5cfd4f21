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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kbraxton/toolhost/internal/jsonrpc"
)

func newTestRegistry(t *testing.T, handler handlerFunc) (*Registry, *fakeLauncher) {
	t.Helper()

	launcher := &fakeLauncher{handler: handler}
	reg := NewRegistry(RegistryConfig{Launcher: launcher})
	t.Cleanup(func() { _ = reg.CloseAll() })
	return reg, launcher
}

func TestRegistryAddAndListTools(t *testing.T) {
	handler := mcpHandler([]Tool{
		{Name: "query", Description: "Run a query", InputSchema: rawSchema},
	})
	reg, _ := newTestRegistry(t, handler)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, ServerSpec{Name: "alpha", Command: "server-a"}))
	require.NoError(t, reg.Add(ctx, ServerSpec{Name: "beta", Command: "server-b"}))

	require.Equal(t, []string{"alpha", "beta"}, reg.Servers())

	// Identical tool names on different servers coexist under distinct
	// qualified names, sorted deterministically.
	records := reg.ListTools()
	require.Len(t, records, 2)
	require.Equal(t, "alpha__query", records[0].QualifiedName)
	require.Equal(t, "beta__query", records[1].QualifiedName)
	require.Equal(t, "query", records[0].Name)
	require.Equal(t, "alpha", records[0].Server)
}

func TestRegistryCallRoutesByQualifiedName(t *testing.T) {
	handler := mcpHandler([]Tool{{Name: "echo", InputSchema: rawSchema}})
	reg, _ := newTestRegistry(t, handler)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, ServerSpec{Name: "alpha", Command: "server-a"}))

	result, err := reg.Call(ctx, "alpha__echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	require.JSONEq(t, `{"echo":"echo"}`, string(result))
}

func TestRegistryCallUnknownServerDoesNoIO(t *testing.T) {
	reg, launcher := newTestRegistry(t, mcpHandler(nil))
	require.NoError(t, reg.Add(context.Background(), ServerSpec{Name: "alpha", Command: "server-a"}))
	before := launcher.launchCount()

	_, err := reg.Call(context.Background(), "missing__echo", nil)
	require.Equal(t, ErrorCodeServerNotFound, CodeOf(err))
	require.Equal(t, before, launcher.launchCount())
}

func TestRegistryCallRejectsUnqualifiedName(t *testing.T) {
	reg, _ := newTestRegistry(t, mcpHandler(nil))

	_, err := reg.Call(context.Background(), "just-a-tool", nil)
	require.Equal(t, ErrorCodeValidation, CodeOf(err))
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	reg, launcher := newTestRegistry(t, mcpHandler(nil))
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, ServerSpec{Name: "alpha", Command: "server-a"}))

	err := reg.Add(ctx, ServerSpec{Name: "alpha", Command: "server-b"})
	require.Equal(t, ErrorCodeAlreadyConnected, CodeOf(err))

	// The duplicate was rejected before anything spawned; the original
	// connection is untouched.
	require.Equal(t, 1, launcher.launchCount())
	require.Equal(t, []string{"alpha"}, reg.Servers())
}

func TestRegistryRemove(t *testing.T) {
	handler := mcpHandler([]Tool{{Name: "echo", InputSchema: rawSchema}})
	reg, launcher := newTestRegistry(t, handler)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, ServerSpec{Name: "alpha", Command: "server-a"}))
	require.NoError(t, reg.Remove("alpha"))

	require.True(t, launcher.server(0).killed.Load())
	require.Empty(t, reg.ListTools())

	_, err := reg.Call(ctx, "alpha__echo", nil)
	require.Equal(t, ErrorCodeServerNotFound, CodeOf(err))

	require.Equal(t, ErrorCodeServerNotFound, CodeOf(reg.Remove("alpha")))
}

func TestRegistryAddKillsChildOnHandshakeFailure(t *testing.T) {
	handler := func(s *scriptedServer, msg jsonrpc.Message) {
		if msg.ID != nil {
			s.respondError(*msg.ID, jsonrpc.CodeInternalError, "broken server")
		}
	}
	reg, launcher := newTestRegistry(t, handler)

	err := reg.Add(context.Background(), ServerSpec{Name: "alpha", Command: "server-a"})
	require.Equal(t, ErrorCodeHandshakeFailed, CodeOf(err))

	// No orphan child, no half-registered entry.
	require.True(t, launcher.server(0).killed.Load())
	require.Empty(t, reg.Servers())

	// The name is free again: a retry fails on the handshake, not on
	// ALREADY_CONNECTED.
	err = reg.Add(context.Background(), ServerSpec{Name: "alpha", Command: "server-a"})
	require.Equal(t, ErrorCodeHandshakeFailed, CodeOf(err))
}

func TestRegistryStatus(t *testing.T) {
	handler := mcpHandler([]Tool{{Name: "echo", InputSchema: rawSchema}})
	reg, launcher := newTestRegistry(t, handler)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, ServerSpec{Name: "alpha", Command: "server-a"}))
	require.NoError(t, reg.Add(ctx, ServerSpec{Name: "beta", Command: "server-b"}))

	statuses := reg.Status()
	require.Len(t, statuses, 2)
	require.Equal(t, "alpha", statuses[0].Name)
	require.Equal(t, "server-a", statuses[0].Command)
	require.True(t, statuses[0].Alive)
	require.Equal(t, 1, statuses[0].ToolCount)
	require.Equal(t, "scripted", statuses[0].ServerInfo.Name)

	// A crashed child shows up as not alive.
	launcher.server(0).closeStdout()
	require.Eventually(t, func() bool {
		return !reg.Status()[0].Alive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegistrySyncReconciles(t *testing.T) {
	handler := mcpHandler([]Tool{{Name: "echo", InputSchema: rawSchema}})
	reg, launcher := newTestRegistry(t, handler)
	ctx := context.Background()

	specA := ServerSpec{Name: "alpha", Command: "server-a"}
	specB := ServerSpec{Name: "beta", Command: "server-b"}

	require.Nil(t, reg.Sync(ctx, []ServerSpec{specA, specB}))
	require.Equal(t, []string{"alpha", "beta"}, reg.Servers())
	require.Equal(t, 2, launcher.launchCount())

	// Unchanged spec: no restart.
	require.Nil(t, reg.Sync(ctx, []ServerSpec{specA, specB}))
	require.Equal(t, 2, launcher.launchCount())

	// Changed args restart only the changed server; a dropped entry is
	// disconnected.
	specA.Args = []string{"--verbose"}
	require.Nil(t, reg.Sync(ctx, []ServerSpec{specA}))
	require.Equal(t, []string{"alpha"}, reg.Servers())
	require.Equal(t, 3, launcher.launchCount())
}

func TestRegistryPing(t *testing.T) {
	reg, _ := newTestRegistry(t, mcpHandler(nil))
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, ServerSpec{Name: "alpha", Command: "server-a"}))
	require.NoError(t, reg.Ping(ctx, "alpha"))
	require.Equal(t, ErrorCodeServerNotFound, CodeOf(reg.Ping(ctx, "ghost")))
}

func TestRegistryCloseAll(t *testing.T) {
	reg, launcher := newTestRegistry(t, mcpHandler(nil))
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, ServerSpec{Name: "alpha", Command: "server-a"}))
	require.NoError(t, reg.Add(ctx, ServerSpec{Name: "beta", Command: "server-b"}))

	require.NoError(t, reg.CloseAll())
	require.Empty(t, reg.Servers())
	require.True(t, launcher.server(0).killed.Load())
	require.True(t, launcher.server(1).killed.Load())
}

func TestRegistryRejectsSeparatorInName(t *testing.T) {
	reg, launcher := newTestRegistry(t, mcpHandler(nil))

	err := reg.Add(context.Background(), ServerSpec{Name: "bad__name", Command: "server-a"})
	require.Equal(t, ErrorCodeValidation, CodeOf(err))
	require.Zero(t, launcher.launchCount())
}

func TestSplitToolName(t *testing.T) {
	tests := []struct {
		qualified string
		server    string
		tool      string
		ok        bool
	}{
		{"alpha__echo", "alpha", "echo", true},
		{"alpha__read__file", "alpha", "read__file", true},
		{"noseparator", "noseparator", "", false},
		{"__tool", "", "tool", true},
	}
	for _, tt := range tests {
		server, tool, ok := SplitToolName(tt.qualified)
		require.Equal(t, tt.ok, ok, tt.qualified)
		if ok {
			require.Equal(t, tt.server, server, tt.qualified)
			require.Equal(t, tt.tool, tool, tt.qualified)
		}
	}
}
