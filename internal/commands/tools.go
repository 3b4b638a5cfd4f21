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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbraxton/toolhost/internal/mcp"
)

// newToolsCommand creates the 'tools' command.
func newToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools [server]",
		Short: "List tools exposed by configured servers",
		Long: `Connect the named server (or every configured server) and list the
aggregated tool catalog under qualified names.`,
		Example: `  # All tools from all configured servers
  toolhost tools

  # Only the git server's tools
  toolhost tools git

  # Tool names for scripting
  toolhost tools --json | jq -r '.[].qualifiedName'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			only := ""
			if len(args) == 1 {
				only = args[0]
			}
			return runTools(cmd, only)
		},
	}
	return cmd
}

func runTools(cmd *cobra.Command, only string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return userError(err)
	}

	specs := cfg.Specs(false)
	if only != "" {
		entry, ok := cfg.Servers[only]
		if !ok {
			return fmt.Errorf("server %q is not configured", only)
		}
		specs = []mcp.ServerSpec{entry.ToSpec(only)}
	}
	if len(specs) == 0 {
		fmt.Println("No servers configured.")
		return nil
	}

	reg := mcp.NewRegistry(mcp.RegistryConfig{})
	defer reg.CloseAll()

	ctx := cmd.Context()
	for _, spec := range specs {
		if err := reg.Add(ctx, spec); err != nil {
			return userError(err)
		}
	}

	records := reg.ListTools()
	if jsonOutput {
		return printJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No tools available.")
		return nil
	}

	for _, rec := range records {
		fmt.Println(rec.QualifiedName)
		if rec.Description != "" {
			for _, line := range wrapText(rec.Description, 70) {
				fmt.Printf("    %s\n", line)
			}
		}
	}
	return nil
}

// wrapText word-wraps a string to the given width.
func wrapText(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
