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

// Package mcp implements the host side of the Model Context Protocol.
//
// MCP (Model Context Protocol) defines a standard way for LLMs to interact
// with external tools. A tool server is a child process speaking JSON-RPC
// 2.0 over its standard input/output, one JSON document per line. This
// package spawns tool servers, performs the initialize handshake, discovers
// their tool catalogs, and routes tool invocations — correlating responses
// to requests by id, since servers may answer out of order.
//
// The package is organized bottom-up: Conn owns a single child process and
// its reader loops; Registry owns the set of named connections and exposes
// the aggregated, server-namespaced tool catalog to the host's agent layer.
// Every spawn passes through the security gate in guard.go.
package mcp
