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
	"io"
	"os"
	"os/exec"
)

// Launcher is the capability to spawn a named executable and obtain byte
// streams for its standard input, output, and error. It is the only way
// this package starts processes; tests inject an in-memory implementation.
type Launcher interface {
	Launch(command string, args []string, env []string) (Process, error)
}

// Process is a handle to one spawned tool server.
type Process interface {
	// Stdin is the child's standard input. Writes are serialized by Conn.
	Stdin() io.WriteCloser
	// Stdout is the child's standard output, read line by line.
	Stdout() io.Reader
	// Stderr is the child's standard error, drained for diagnostics.
	Stderr() io.Reader
	// Kill forcibly terminates the child. Idempotent; safe after exit.
	Kill() error
	// Wait reaps the child after its pipes close.
	Wait() error
	// Pid returns the OS process id, or 0 for non-OS implementations.
	Pid() int
}

// ExecLauncher spawns real OS processes via os/exec.
type ExecLauncher struct{}

// Launch starts the executable with its three standard streams captured as
// pipes. Env entries (KEY=VALUE) are appended to the host environment; the
// caller decides PATH augmentation and server-specific variables.
func (ExecLauncher) Launch(command string, args []string, env []string) (Process, error) {
	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
