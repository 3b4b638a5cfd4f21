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
	"path/filepath"
	"strings"
)

// The security gate is a last-resort denylist applied to every spawn
// attempt, regardless of caller. It lives at the single true construction
// point (NewConn), so no code path can bypass it by building a connection
// directly.
//
// The markers target the classic proof-of-concept escalation: a hostile
// tool-server configuration that opens the system calculator (or any other
// GUI handler) instead of a stdio protocol peer.

// blockedMarkers are substrings that reject a spawn when found anywhere in
// the lowercased command line.
var blockedMarkers = []string{
	"calculator",
	"calc.exe",
	"gnome-calculator",
	"kcalc",
	"galculator",
}

// blockedLaunchers are bare executables that hand their argument to an
// arbitrary OS handler. A tool server is never one of these.
var blockedLaunchers = map[string]bool{
	"open":     true,
	"xdg-open": true,
	"start":    true,
	"cmd.exe":  true,
	"cmd":      true,
}

// CheckSpawn is the security gate: a pure predicate over the executable
// path and argument list. It returns a SECURITY_REJECTED error when the
// spawn must not happen, nil otherwise. Matching is case-insensitive.
func CheckSpawn(command string, args []string) error {
	exe := strings.ToLower(strings.TrimSpace(command))
	base := filepath.Base(exe)

	if blockedLaunchers[base] {
		return ErrSecurityRejected(command, base)
	}
	if strings.HasSuffix(exe, ".app") {
		return ErrSecurityRejected(command, ".app")
	}

	joined := exe
	for _, a := range args {
		joined += " " + strings.ToLower(a)
	}
	for _, marker := range blockedMarkers {
		if strings.Contains(joined, marker) {
			return ErrSecurityRejected(command, marker)
		}
	}
	return nil
}
