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

	"github.com/spf13/cobra"

	"github.com/kbraxton/toolhost/internal/mcp"
)

// newCallCommand creates the 'call' command.
func newCallCommand() *cobra.Command {
	var (
		argsJSON   string
		showStderr bool
	)

	cmd := &cobra.Command{
		Use:   "call <server__tool>",
		Short: "Call a tool by its qualified name",
		Long: `Connect the owning server, invoke one tool, print the raw result, and
shut the server down again.

The tool name must be qualified: "<server>__<tool>".`,
		Example: `  # Call the git server's status tool
  toolhost call git__git_status --args '{"repo_path": "/src/project"}'

  # Show the server's stderr output after the call
  toolhost call files__read_file --args '{"path": "/tmp/x"}' --show-stderr`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, args[0], argsJSON, showStderr)
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "{}", "Tool arguments as a JSON object")
	cmd.Flags().BoolVar(&showStderr, "show-stderr", false, "Print the server's captured stderr after the call")

	return cmd
}

func runCall(cmd *cobra.Command, qualified, argsJSON string, showStderr bool) error {
	server, _, ok := mcp.SplitToolName(qualified)
	if !ok {
		return fmt.Errorf("tool name must be qualified as <server>__<tool>, got %q", qualified)
	}

	var arguments map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &arguments); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return userError(err)
	}
	entry, found := cfg.Servers[server]
	if !found {
		return fmt.Errorf("server %q is not configured", server)
	}

	capture := mcp.NewLogCapture()
	reg := mcp.NewRegistry(mcp.RegistryConfig{Capture: capture})
	defer reg.CloseAll()

	ctx := cmd.Context()
	if err := reg.Add(ctx, entry.ToSpec(server)); err != nil {
		return userError(err)
	}

	result, callErr := reg.Call(ctx, qualified, arguments)

	if showStderr {
		entries := capture.Get(server, 0)
		if len(entries) > 0 {
			fmt.Fprintf(os.Stderr, "--- %s stderr ---\n", server)
			for _, e := range entries {
				fmt.Fprintln(os.Stderr, e.Message)
			}
			fmt.Fprintln(os.Stderr, "---")
		}
	}

	if callErr != nil {
		return userError(callErr)
	}

	var pretty any
	if err := json.Unmarshal(result, &pretty); err != nil {
		// Not JSON; print verbatim.
		fmt.Println(string(result))
		return nil
	}
	return printJSON(pretty)
}
