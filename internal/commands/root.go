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

// Package commands implements the toolhost CLI.
package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kbraxton/toolhost/internal/log"
	"github.com/kbraxton/toolhost/internal/mcp"
)

// BuildInfo carries version metadata injected at build time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var (
	jsonOutput bool
	configFlag string
)

// NewRootCommand creates the toolhost root command.
func NewRootCommand(info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolhost",
		Short: "Connect, inspect, and call MCP tool servers",
		Long: `Toolhost manages connections to MCP (Model Context Protocol) tool
servers. Servers are spawned as child processes speaking line-delimited
JSON-RPC over stdio; their tool catalogs are aggregated under qualified
names ("<server>__<tool>") so identically named tools never collide.

Servers are configured in ` + "`servers.yaml`" + ` (see: toolhost servers add).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(log.New(log.FromEnv()))
		},
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to the servers config file")

	cmd.AddCommand(newServersCommand())
	cmd.AddCommand(newToolsCommand())
	cmd.AddCommand(newCallCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newVersionCommand(info))

	return cmd
}

// configPath resolves the servers config location, honoring --config.
func configPath() (string, error) {
	if configFlag != "" {
		return configFlag, nil
	}
	return mcp.ConfigPath()
}

// loadConfig loads and validates the servers config.
func loadConfig() (*mcp.ServersConfig, string, error) {
	path, err := configPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := mcp.LoadConfig(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// userError unwraps a HostError into its user-facing message, keeping
// suggestions on their own lines.
func userError(err error) error {
	var he *mcp.HostError
	if !errors.As(err, &he) {
		return err
	}
	msg := he.UserMessage()
	for _, s := range he.Suggestions {
		msg += "\n  hint: " + s
	}
	return fmt.Errorf("%s", msg)
}
