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

// toolhost-echo is a tiny MCP tool server used for end-to-end exercising of
// toolhost itself:
//
//	toolhost servers add echo --command toolhost-echo
//	toolhost call echo__echo --args '{"text": "hello"}'
//
// It exposes two tools: echo (returns its input) and env (reads one
// environment variable), and logs a line to stderr on every call so the
// stderr capture path can be observed with --show-stderr.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var version = "dev"

func main() {
	srv := server.NewMCPServer("toolhost-echo", version)

	srv.AddTool(mcp.Tool{
		Name:        "echo",
		Description: "Echo the given text back to the caller.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to echo",
				},
			},
			Required: []string{"text"},
		},
	}, handleEcho)

	srv.AddTool(mcp.Tool{
		Name:        "env",
		Description: "Return the value of an environment variable visible to the server process.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Environment variable name",
				},
			},
			Required: []string{"name"},
		},
	}, handleEnv)

	if err := server.ServeStdio(srv); err != nil {
		fmt.Fprintf(os.Stderr, "toolhost-echo: %v\n", err)
		os.Exit(1)
	}
}

func handleEcho(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fmt.Fprintf(os.Stderr, "echo called (%d bytes)\n", len(text))
	return mcp.NewToolResultText(text), nil
}

func handleEnv(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fmt.Fprintf(os.Stderr, "env called for %s\n", name)

	value, ok := os.LookupEnv(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("%s is not set", name)), nil
	}
	return mcp.NewToolResultText(value), nil
}
