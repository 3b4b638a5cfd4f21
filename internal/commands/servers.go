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
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbraxton/toolhost/internal/mcp"
)

// newServersCommand creates the 'servers' command group.
func newServersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage configured MCP tool servers",
		Long: `Manage the tool servers in the servers config file.

Commands:
  list      List configured servers (default)
  add       Add a server to the config
  remove    Remove a server from the config
  ping      Check that a server starts and responds`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServersList()
		},
	}

	cmd.AddCommand(newServersListCommand())
	cmd.AddCommand(newServersAddCommand())
	cmd.AddCommand(newServersRemoveCommand())
	cmd.AddCommand(newServersPingCommand())

	return cmd
}

func newServersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured servers",
		Example: `  # List configured servers
  toolhost servers list

  # Server names for scripting
  toolhost servers list --json | jq -r '.servers | keys[]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServersList()
		},
	}
}

func runServersList() error {
	cfg, path, err := loadConfig()
	if err != nil {
		return userError(err)
	}

	if jsonOutput {
		// Redact before anything leaves the process.
		out := map[string]any{"config": path, "servers": map[string]any{}}
		servers := out["servers"].(map[string]any)
		for name, entry := range cfg.Servers {
			servers[name] = map[string]any{
				"command":      entry.Command,
				"args":         entry.Args,
				"env":          mcp.RedactEnv(entry.Env),
				"timeout":      entry.Timeout,
				"auto_connect": entry.AutoConnect,
			}
		}
		return printJSON(out)
	}

	if len(cfg.Servers) == 0 {
		fmt.Println("No servers configured.")
		fmt.Println("\nTo add one:")
		fmt.Println("  toolhost servers add <name> --command <cmd> [--arg <arg>]...")
		return nil
	}

	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%-20s %-12s %-8s %s\n", "NAME", "AUTO", "TIMEOUT", "COMMAND")
	fmt.Println(strings.Repeat("-", 70))
	for _, name := range names {
		entry := cfg.Servers[name]
		auto := "-"
		if entry.AutoConnect {
			auto = "auto"
		}
		command := entry.Command
		if len(entry.Args) > 0 {
			command += " " + strings.Join(entry.Args, " ")
		}
		fmt.Printf("%-20s %-12s %-8s %s\n", name, auto, fmt.Sprintf("%ds", entry.Timeout), command)
	}
	return nil
}

func newServersAddCommand() *cobra.Command {
	var (
		command     string
		cmdArgs     []string
		env         []string
		timeout     int
		autoConnect bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a server to the config",
		Example: `  # Add the reference git server
  toolhost servers add git --command uvx --arg mcp-server-git

  # Filesystem server with an environment variable
  toolhost servers add files --command npx \
    --arg -y --arg @modelcontextprotocol/server-filesystem --arg /tmp \
    --env FS_READONLY=1 --auto-connect`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServersAdd(args[0], mcp.ServerEntry{
				Command:     command,
				Args:        cmdArgs,
				Env:         env,
				Timeout:     timeout,
				AutoConnect: autoConnect,
			})
		},
	}

	cmd.Flags().StringVar(&command, "command", "", "Executable to run (required)")
	cmd.Flags().StringArrayVar(&cmdArgs, "arg", nil, "Command argument (repeatable)")
	cmd.Flags().StringArrayVar(&env, "env", nil, "KEY=VALUE environment variable (repeatable)")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Per-request timeout in seconds")
	cmd.Flags().BoolVar(&autoConnect, "auto-connect", false, "Connect this server on 'toolhost serve' startup")
	_ = cmd.MarkFlagRequired("command")

	return cmd
}

func runServersAdd(name string, entry mcp.ServerEntry) error {
	if err := mcp.ValidateServerName(name); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("server %q: %w", name, err)
	}
	// Refuse to persist a config the gate would reject at spawn time.
	if err := mcp.CheckSpawn(entry.Command, entry.Args); err != nil {
		return userError(err)
	}

	cfg, path, err := loadConfig()
	if err != nil {
		return userError(err)
	}
	if _, exists := cfg.Servers[name]; exists {
		return fmt.Errorf("server %q already configured; remove it first", name)
	}

	cfg.Servers[name] = &entry
	if err := mcp.SaveConfig(path, cfg); err != nil {
		return userError(err)
	}

	fmt.Printf("Added server %q to %s\n", name, path)
	return nil
}

func newServersRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a server from the config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServersRemove(args[0])
		},
	}
}

func runServersRemove(name string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return userError(err)
	}
	if _, exists := cfg.Servers[name]; !exists {
		return fmt.Errorf("server %q is not configured", name)
	}

	delete(cfg.Servers, name)
	if err := mcp.SaveConfig(path, cfg); err != nil {
		return userError(err)
	}

	fmt.Printf("Removed server %q from %s\n", name, path)
	return nil
}

func newServersPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping <name>",
		Short: "Check that a server starts and responds",
		Long: `Spawn the named server, run the MCP handshake, send a ping, and shut
it down again. Useful to verify a config entry before relying on it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServersPing(cmd, args[0])
		},
	}
}

func runServersPing(cmd *cobra.Command, name string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return userError(err)
	}
	entry, ok := cfg.Servers[name]
	if !ok {
		return fmt.Errorf("server %q is not configured", name)
	}

	reg := mcp.NewRegistry(mcp.RegistryConfig{})
	defer reg.CloseAll()

	ctx := cmd.Context()
	if err := reg.Add(ctx, entry.ToSpec(name)); err != nil {
		return userError(err)
	}
	if err := reg.Ping(ctx, name); err != nil {
		return userError(err)
	}

	status := reg.Status()[0]
	if jsonOutput {
		return printJSON(status)
	}
	fmt.Printf("%s: ok (%s %s, %d tools, pid %d)\n",
		name, status.ServerInfo.Name, status.ServerInfo.Version, status.ToolCount, status.Pid)
	return nil
}

// printJSON writes indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
