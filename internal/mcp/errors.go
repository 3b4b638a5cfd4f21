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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kbraxton/toolhost/internal/jsonrpc"
)

// ErrorCode categorizes a host-side MCP failure.
type ErrorCode string

const (
	// ErrorCodeSecurityRejected indicates the spawn was blocked by policy.
	ErrorCodeSecurityRejected ErrorCode = "SECURITY_REJECTED"
	// ErrorCodeSpawnFailed indicates the OS could not start the process.
	ErrorCodeSpawnFailed ErrorCode = "SPAWN_FAILED"
	// ErrorCodeTransportWrite indicates a write to the child's stdin failed.
	ErrorCodeTransportWrite ErrorCode = "TRANSPORT_WRITE_FAILED"
	// ErrorCodeRequestTimedOut indicates no response arrived within the bound.
	ErrorCodeRequestTimedOut ErrorCode = "REQUEST_TIMED_OUT"
	// ErrorCodeRemoteError indicates the server answered with a JSON-RPC error.
	ErrorCodeRemoteError ErrorCode = "REMOTE_ERROR"
	// ErrorCodeHandshakeFailed indicates the initialize sequence failed.
	ErrorCodeHandshakeFailed ErrorCode = "HANDSHAKE_FAILED"
	// ErrorCodeServerNotFound indicates no connection exists under the name.
	ErrorCodeServerNotFound ErrorCode = "SERVER_NOT_FOUND"
	// ErrorCodeAlreadyConnected indicates the name is already taken.
	ErrorCodeAlreadyConnected ErrorCode = "ALREADY_CONNECTED"
	// ErrorCodeConnectionClosed indicates the child exited or its pipe closed.
	ErrorCodeConnectionClosed ErrorCode = "CONNECTION_CLOSED"
	// ErrorCodeValidation indicates invalid caller input.
	ErrorCodeValidation ErrorCode = "VALIDATION"
	// ErrorCodeConfig indicates a configuration error.
	ErrorCodeConfig ErrorCode = "CONFIG"
)

// HostError is the error type surfaced by this package. Every failure is
// returned to the immediate caller as a typed result; the package performs
// no silent retries anywhere.
type HostError struct {
	// Code is the error category.
	Code ErrorCode
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *HostError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *HostError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a message suitable for surfacing to the invoking
// layer (agent or UI) without internal detail.
func (e *HostError) UserMessage() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// newHostError creates a new HostError.
func newHostError(code ErrorCode, message string) *HostError {
	return &HostError{Code: code, Message: message}
}

// WithDetail adds detail to the error.
func (e *HostError) WithDetail(detail string) *HostError {
	e.Detail = detail
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *HostError) WithSuggestions(suggestions ...string) *HostError {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *HostError) WithCause(cause error) *HostError {
	e.Cause = cause
	return e
}

// CodeOf extracts the ErrorCode from an error chain, or "" if the chain
// contains no HostError.
func CodeOf(err error) ErrorCode {
	var he *HostError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// ErrSecurityRejected reports a spawn blocked by the security gate.
func ErrSecurityRejected(command, marker string) *HostError {
	return newHostError(ErrorCodeSecurityRejected, fmt.Sprintf("refusing to spawn %q", command)).
		WithDetail(fmt.Sprintf("command line matches blocked marker %q", marker)).
		WithSuggestions(
			"Remove the blocked command or argument from the server configuration",
			"Tool servers must be plain stdio executables, not OS launchers or GUI applications",
		)
}

// ErrSpawnFailed reports that the OS could not start the executable.
func ErrSpawnFailed(command string, cause error) *HostError {
	return newHostError(ErrorCodeSpawnFailed, fmt.Sprintf("failed to start %q", command)).
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions(
			"Verify the command is installed and in PATH",
			"Use an absolute path to the server executable",
		)
}

// ErrTransportWrite reports a failed write to the child's stdin. The
// connection should be considered dead; there is no automatic reconnection.
func ErrTransportWrite(server string, cause error) *HostError {
	return newHostError(ErrorCodeTransportWrite, fmt.Sprintf("write to MCP server %q failed", server)).
		WithDetail(cause.Error()).
		WithCause(cause).
		WithSuggestions(
			"The server process has likely exited; reconnect it",
		)
}

// ErrRequestTimedOut reports that no response arrived within the bound. The
// pending slot is already cleaned up; the caller may retry at its own
// discretion.
func ErrRequestTimedOut(server, method string, timeout time.Duration) *HostError {
	return newHostError(ErrorCodeRequestTimedOut, fmt.Sprintf("MCP server %q did not answer %s", server, method)).
		WithDetail(fmt.Sprintf("no response within %s", timeout)).
		WithSuggestions(
			"The server may still be processing; the late answer will be discarded",
			"Increase the per-server timeout if the tool is legitimately slow",
		)
}

// ErrRemote surfaces a protocol-level error object verbatim.
func ErrRemote(server, method string, rpcErr *jsonrpc.Error) *HostError {
	return newHostError(ErrorCodeRemoteError, fmt.Sprintf("MCP server %q rejected %s", server, method)).
		WithDetail(fmt.Sprintf("code %d: %s", rpcErr.Code, rpcErr.Message)).
		WithCause(rpcErr)
}

// ErrHandshakeFailed reports a failure at a named stage of the initialize
// sequence. The connection is still alive; the caller decides whether to
// discard it.
func ErrHandshakeFailed(server, stage string, cause error) *HostError {
	return newHostError(ErrorCodeHandshakeFailed, fmt.Sprintf("MCP handshake with %q failed", server)).
		WithDetail(fmt.Sprintf("stage %s: %v", stage, cause)).
		WithCause(cause).
		WithSuggestions(
			"Verify the command actually speaks MCP over stdio",
			"Inspect the server's stderr output for startup errors",
		)
}

// ErrServerNotFound reports a lookup of an unknown server name.
func ErrServerNotFound(name string) *HostError {
	return newHostError(ErrorCodeServerNotFound, fmt.Sprintf("MCP server %q is not connected", name)).
		WithSuggestions(
			"Check the server name: toolhost servers",
			"Connect it first: toolhost call requires a configured server",
		)
}

// ErrAlreadyConnected reports an attempt to connect a second server under
// a name that is already live.
func ErrAlreadyConnected(name string) *HostError {
	return newHostError(ErrorCodeAlreadyConnected, fmt.Sprintf("MCP server %q is already connected", name)).
		WithSuggestions(
			fmt.Sprintf("Disconnect it first: remove %q and re-add it", name),
			"Use a distinct name for the second instance",
		)
}

// ErrConnectionClosed reports that the child process exited or closed its
// output stream while requests were outstanding.
func ErrConnectionClosed(server string) *HostError {
	return newHostError(ErrorCodeConnectionClosed, fmt.Sprintf("connection to MCP server %q closed", server)).
		WithSuggestions(
			"Inspect the server's captured stderr for crash details",
			"Reconnect the server",
		)
}

// ErrValidation reports invalid caller input.
func ErrValidation(detail string) *HostError {
	return newHostError(ErrorCodeValidation, "invalid MCP server parameters").
		WithDetail(detail)
}

// ErrConfig reports an invalid configuration entry.
func ErrConfig(detail string) *HostError {
	return newHostError(ErrorCodeConfig, "invalid MCP configuration").
		WithDetail(detail).
		WithSuggestions(
			"Check the syntax of the servers file",
			"Run: toolhost validate",
		)
}
