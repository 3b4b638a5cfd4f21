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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerNameRegex validates server names. Names must start with a letter
// and contain only letters, numbers, and hyphens. Underscores are excluded
// because "__" separates server from tool in qualified tool names.
var ServerNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]{0,63}$`)

// ServersConfig is the servers configuration file.
// Stored at ~/.config/toolhost/servers.yaml
type ServersConfig struct {
	// Servers maps server name to its configuration.
	Servers map[string]*ServerEntry `yaml:"servers,omitempty"`

	// Defaults provides default values for server entries.
	Defaults ConfigDefaults `yaml:"defaults,omitempty"`
}

// ServerEntry is a single configured tool server.
type ServerEntry struct {
	// Command is the executable to run (e.g., "npx", "uvx").
	Command string `yaml:"command"`

	// Args are command-line arguments.
	Args []string `yaml:"args,omitempty"`

	// Env are environment variables in KEY=VALUE format.
	Env []string `yaml:"env,omitempty"`

	// Timeout is the per-request timeout in seconds (default 30).
	Timeout int `yaml:"timeout,omitempty"`

	// AutoConnect connects this server on startup of the serve command.
	AutoConnect bool `yaml:"auto_connect,omitempty"`
}

// ConfigDefaults provides default values for server entries.
type ConfigDefaults struct {
	// Timeout is the default per-request timeout in seconds (default 30).
	Timeout int `yaml:"timeout,omitempty"`

	// AutoConnect is the default auto_connect value (default false).
	AutoConnect bool `yaml:"auto_connect,omitempty"`
}

// ConfigPath returns the path to the servers configuration file. The
// TOOLHOST_CONFIG environment variable overrides the default location.
func ConfigPath() (string, error) {
	if p := os.Getenv("TOOLHOST_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve config directory: %w", err)
	}
	return filepath.Join(dir, "toolhost", "servers.yaml"), nil
}

// LoadConfig loads the servers configuration from the given path. A
// missing file yields an empty configuration, not an error.
func LoadConfig(path string) (*ServersConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ServersConfig{Servers: make(map[string]*ServerEntry)}, nil
		}
		return nil, ErrConfig(fmt.Sprintf("failed to read %s: %v", path, err))
	}

	var cfg ServersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ErrConfig(fmt.Sprintf("failed to parse %s: %v", path, err))
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]*ServerEntry)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// SaveConfig writes the configuration atomically: a temp file in the same
// directory, then a rename.
func SaveConfig(path string, cfg *ServersConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ErrConfig(fmt.Sprintf("failed to marshal config: %v", err))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ErrConfig(fmt.Sprintf("failed to create config directory: %v", err))
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return ErrConfig(fmt.Sprintf("failed to write config file: %v", err))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return ErrConfig(fmt.Sprintf("failed to save config file: %v", err))
	}
	return nil
}

// applyDefaults fills unset entry fields from the defaults section.
func (c *ServersConfig) applyDefaults() {
	timeout := c.Defaults.Timeout
	if timeout == 0 {
		timeout = int(DefaultRequestTimeout / time.Second)
	}
	for _, entry := range c.Servers {
		if entry.Timeout == 0 {
			entry.Timeout = timeout
		}
		if c.Defaults.AutoConnect && !entry.AutoConnect {
			entry.AutoConnect = true
		}
	}
}

// Validate validates the entire configuration.
func (c *ServersConfig) Validate() error {
	for name, entry := range c.Servers {
		if err := ValidateServerName(name); err != nil {
			return ErrConfig(fmt.Sprintf("server %q: %v", name, err))
		}
		if err := entry.Validate(); err != nil {
			return ErrConfig(fmt.Sprintf("server %q: %v", name, err))
		}
	}
	return nil
}

// Validate validates a single server entry.
func (e *ServerEntry) Validate() error {
	if e.Command == "" {
		return fmt.Errorf("command is required")
	}
	if e.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	for i, arg := range e.Args {
		if err := ValidateArg(arg); err != nil {
			return fmt.Errorf("args[%d]: %w", i, err)
		}
	}
	for i, env := range e.Env {
		if err := ValidateEnv(env); err != nil {
			return fmt.Errorf("env[%d]: %w", i, err)
		}
	}
	return nil
}

// ToSpec converts a configuration entry into a connection spec.
func (e *ServerEntry) ToSpec(name string) ServerSpec {
	return ServerSpec{
		Name:    name,
		Command: e.Command,
		Args:    e.Args,
		Env:     e.Env,
		Timeout: time.Duration(e.Timeout) * time.Second,
	}
}

// Specs returns connection specs for all configured servers, sorted by
// name. When autoOnly is set, only auto_connect entries are included.
func (c *ServersConfig) Specs(autoOnly bool) []ServerSpec {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]ServerSpec, 0, len(names))
	for _, name := range names {
		entry := c.Servers[name]
		if autoOnly && !entry.AutoConnect {
			continue
		}
		specs = append(specs, entry.ToSpec(name))
	}
	return specs
}

// ValidateServerName validates a tool server name.
func ValidateServerName(name string) error {
	if name == "" {
		return fmt.Errorf("server name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("server name exceeds 64 character limit")
	}
	if !ServerNameRegex.MatchString(name) {
		return fmt.Errorf("invalid server name: must start with a letter and contain only letters, numbers, and hyphens")
	}
	return nil
}

// ValidateCommand checks that a configured command resolves to an
// executable, either by absolute path or via PATH.
func ValidateCommand(cmd string) error {
	if cmd == "" {
		return fmt.Errorf("command is required")
	}

	if filepath.IsAbs(cmd) {
		info, err := os.Stat(cmd)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("command not found: %s", cmd)
			}
			return fmt.Errorf("cannot access command: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("command is a directory: %s", cmd)
		}
		if info.Mode()&0o111 == 0 {
			return fmt.Errorf("command is not executable: %s", cmd)
		}
		return nil
	}

	if _, err := exec.LookPath(cmd); err != nil {
		return fmt.Errorf("command not found in PATH: %s", cmd)
	}
	return nil
}

// shellInjectionPatterns are patterns that could indicate shell injection
// attempts in configured arguments.
var shellInjectionPatterns = []string{
	";", "&&", "||", "|", "`", "$(", "${", "\n", "\r",
}

// ValidateArg validates a command argument for shell injection.
func ValidateArg(arg string) error {
	for _, pattern := range shellInjectionPatterns {
		if strings.Contains(arg, pattern) {
			return fmt.Errorf("argument contains potentially unsafe pattern %q", pattern)
		}
	}
	return nil
}

// envKeyRegex validates environment variable names.
var envKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateEnv validates an environment variable in KEY=VALUE format.
func ValidateEnv(env string) error {
	parts := strings.SplitN(env, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("environment variable must be in KEY=VALUE format")
	}
	if parts[0] == "" {
		return fmt.Errorf("environment variable key is required")
	}
	if !envKeyRegex.MatchString(parts[0]) {
		return fmt.Errorf("invalid environment variable key: %s", parts[0])
	}
	return nil
}

// sensitiveKeyPatterns indicate values that must never be printed.
var sensitiveKeyPatterns = []string{
	"SECRET", "TOKEN", "KEY", "PASSWORD", "CREDENTIAL", "AUTH", "API_KEY",
}

// IsSensitiveEnvKey returns true if the key appears to hold sensitive data.
func IsSensitiveEnvKey(key string) bool {
	upperKey := strings.ToUpper(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(upperKey, pattern) {
			return true
		}
	}
	return false
}

// RedactEnv redacts sensitive values from an environment variable list.
func RedactEnv(envs []string) []string {
	result := make([]string, len(envs))
	for i, env := range envs {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 && IsSensitiveEnvKey(parts[0]) {
			result[i] = parts[0] + "=***REDACTED***"
		} else {
			result[i] = env
		}
	}
	return result
}
