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

package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbraxton/toolhost/internal/mcp"
)

// useTempConfig points the package at a throwaway config file.
func useTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servers.yaml")
	old := configFlag
	configFlag = path
	t.Cleanup(func() { configFlag = old })
	return path
}

func TestServersAddAndRemove(t *testing.T) {
	path := useTempConfig(t)

	entry := mcp.ServerEntry{Command: "uvx", Args: []string{"mcp-server-git"}}
	require.NoError(t, runServersAdd("git", entry))

	cfg, err := mcp.LoadConfig(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Servers, "git")
	require.Equal(t, "uvx", cfg.Servers["git"].Command)

	// Duplicate names are rejected.
	require.Error(t, runServersAdd("git", entry))

	require.NoError(t, runServersRemove("git"))
	cfg, err = mcp.LoadConfig(path)
	require.NoError(t, err)
	require.NotContains(t, cfg.Servers, "git")

	require.Error(t, runServersRemove("git"))
}

func TestServersAddRejectsGatedCommand(t *testing.T) {
	useTempConfig(t)

	err := runServersAdd("sneaky", mcp.ServerEntry{
		Command: "open",
		Args:    []string{"-a", "Calculator"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "refusing to spawn")
}

func TestServersAddValidatesName(t *testing.T) {
	useTempConfig(t)

	err := runServersAdd("bad_name", mcp.ServerEntry{Command: "uvx"})
	require.Error(t, err)
}

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCommand(BuildInfo{Version: "test"})

	want := []string{"servers", "tools", "call", "validate", "serve", "version"}
	have := make(map[string]bool)
	for _, cmd := range root.Commands() {
		have[cmd.Name()] = true
	}
	for _, name := range want {
		require.True(t, have[name], "missing subcommand %s", name)
	}
}

func TestWrapText(t *testing.T) {
	require.Nil(t, wrapText("", 10))
	require.Equal(t, []string{"short"}, wrapText("short", 10))
	require.Equal(t,
		[]string{"aaa bbb", "ccc"},
		wrapText("aaa bbb ccc", 7),
	)
}
