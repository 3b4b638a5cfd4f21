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
	"sort"

	"github.com/spf13/cobra"

	"github.com/kbraxton/toolhost/internal/mcp"
)

// newValidateCommand creates the 'validate' command.
func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the servers config file",
		Long: `Check every configured server: name and entry syntax, that the command
resolves to an executable, and that the security gate would allow the
spawn. Nothing is started.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}
}

func runValidate() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := mcp.LoadConfig(path)
	if err != nil {
		return userError(err)
	}

	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Printf("%s: no servers configured\n", path)
		return nil
	}

	failures := 0
	for _, name := range names {
		entry := cfg.Servers[name]

		var problems []string
		if err := mcp.ValidateServerName(name); err != nil {
			problems = append(problems, err.Error())
		}
		if err := entry.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
		if entry.Command != "" {
			if err := mcp.ValidateCommand(entry.Command); err != nil {
				problems = append(problems, err.Error())
			}
			if err := mcp.CheckSpawn(entry.Command, entry.Args); err != nil {
				problems = append(problems, err.Error())
			}
		}

		if len(problems) == 0 {
			fmt.Printf("  ok    %s\n", name)
			continue
		}
		failures++
		for _, p := range problems {
			fmt.Printf("  FAIL  %s: %s\n", name, p)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d servers failed validation", failures, len(names))
	}
	fmt.Printf("%d servers ok (%s)\n", len(names), path)
	return nil
}
