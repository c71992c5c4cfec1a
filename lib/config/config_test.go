// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/gorick/lib/supervisor"
	"github.com/bureau-foundation/gorick/lib/wire"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Interpreter.Command != "yorick" {
		t.Errorf("expected command=yorick, got %s", cfg.Interpreter.Command)
	}
	if cfg.Session.Protocol != supervisor.DefaultProtocol() {
		t.Errorf("expected the default protocol, got %+v", cfg.Session.Protocol)
	}
	if !cfg.Codec.Fallback {
		t.Error("expected fallback=true by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv(EnvVar, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when GORICK_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "GORICK_CONFIG environment variable not set") {
		t.Errorf("unexpected error message %q", err.Error())
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	path := writeConfig(t, "gorick.yaml", `
interpreter:
  command: /opt/yorick/bin/yorick
  text: pipe
`)
	t.Setenv(EnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Interpreter.Command != "/opt/yorick/bin/yorick" {
		t.Errorf("expected command from file, got %s", cfg.Interpreter.Command)
	}
	if cfg.Interpreter.Text != "pipe" {
		t.Errorf("expected text=pipe, got %s", cfg.Interpreter.Text)
	}
	if cfg.Interpreter.Startup != string(supervisor.Interactive) {
		t.Errorf("expected default startup to survive, got %s", cfg.Interpreter.Startup)
	}
}

func TestLoadFileFormats(t *testing.T) {
	yamlContent := `
root: /srv/gorick
interpreter:
  command: yorick
  arguments: ["-q", "-i", "${GORICK_ROOT}/pyorick.i"]
  dir: work
  startup: batch
session:
  trace: true
  kill_grace: 5s
  prompt_timeout: 1m
  transcript_size: 4096
  protocol:
    quit_command: "quit;"
codec:
  compression: zstd
`
	tomlContent := `
root = "/srv/gorick"

[interpreter]
command = "yorick"
arguments = ["-q", "-i", "${GORICK_ROOT}/pyorick.i"]
dir = "work"
startup = "batch"

[session]
trace = true
kill_grace = "5s"
prompt_timeout = "1m"
transcript_size = 4096

[session.protocol]
quit_command = "quit;"

[codec]
compression = "zstd"
`
	for _, tt := range []struct{ name, content string }{
		{"gorick.yaml", yamlContent},
		{"gorick.toml", tomlContent},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFile(writeConfig(t, tt.name, tt.content))
			if err != nil {
				t.Fatalf("LoadFile failed: %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}

			sc, err := cfg.Supervisor()
			if err != nil {
				t.Fatalf("Supervisor: %v", err)
			}
			wantArguments := []string{"-q", "-i", "/srv/gorick/pyorick.i"}
			if !reflect.DeepEqual(sc.Arguments, wantArguments) {
				t.Errorf("arguments = %v, want %v", sc.Arguments, wantArguments)
			}
			if sc.Dir != "/srv/gorick/work" {
				t.Errorf("dir = %s, want /srv/gorick/work", sc.Dir)
			}
			if sc.Startup != supervisor.Batch || sc.Text != supervisor.TextPTY {
				t.Errorf("modes = %s/%s", sc.Startup, sc.Text)
			}
			if sc.KillGrace != 5*time.Second || sc.PromptTimeout != time.Minute {
				t.Errorf("durations = %v/%v", sc.KillGrace, sc.PromptTimeout)
			}
			if !sc.Trace || sc.TranscriptSize != 4096 {
				t.Errorf("trace=%v transcript=%d", sc.Trace, sc.TranscriptSize)
			}
			if sc.Protocol.QuitCommand != "quit;" {
				t.Errorf("quit command = %q", sc.Protocol.QuitCommand)
			}
			if sc.Protocol.RequestCommand != supervisor.DefaultProtocol().RequestCommand {
				t.Errorf("request command lost its default: %q", sc.Protocol.RequestCommand)
			}

			options, err := cfg.CodecOptions()
			if err != nil {
				t.Fatalf("CodecOptions: %v", err)
			}
			if options != (wire.Options{Fallback: true, Compression: wire.CompressZstd}) {
				t.Errorf("codec options = %+v", options)
			}
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := LoadFile(writeConfig(t, "bad.yaml", "interpreter: [")); err == nil {
		t.Error("expected error for malformed YAML")
	}
	if _, err := LoadFile(writeConfig(t, "bad.toml", "interpreter = ")); err == nil {
		t.Error("expected error for malformed TOML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantDebug bool
		wantTrace bool
		wantGrace string
	}{
		{
			name: "development section",
			content: `
environment: development
session:
  debug: false
development:
  debug: true
  kill_grace: 10s
`,
			wantDebug: true,
			wantGrace: "10s",
		},
		{
			name: "production default quiets diagnostics",
			content: `
environment: production
session:
  debug: true
  trace: true
`,
			wantGrace: supervisor.DefaultKillGrace.String(),
		},
		{
			name: "production section keeps trace",
			content: `
environment: production
production:
  trace: true
`,
			wantTrace: true,
			wantGrace: supervisor.DefaultKillGrace.String(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFile(writeConfig(t, "gorick.yaml", tt.content))
			if err != nil {
				t.Fatalf("LoadFile failed: %v", err)
			}
			if cfg.Session.Debug != tt.wantDebug || cfg.Session.Trace != tt.wantTrace {
				t.Errorf("debug=%v trace=%v, want %v %v", cfg.Session.Debug, cfg.Session.Trace, tt.wantDebug, tt.wantTrace)
			}
			if cfg.Session.KillGrace != tt.wantGrace {
				t.Errorf("kill_grace = %s, want %s", cfg.Session.KillGrace, tt.wantGrace)
			}
		})
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("GORICK_COMMAND", "/env/yorick")
	cfg, err := LoadFile(writeConfig(t, "gorick.yaml", "interpreter:\n  command: /file/yorick\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Interpreter.Command != "/file/yorick" {
		t.Errorf("expected command from file, got %s", cfg.Interpreter.Command)
	}

	// Explicit references are expanded.
	cfg, err = LoadFile(writeConfig(t, "gorick.yaml", "interpreter:\n  command: ${GORICK_COMMAND}\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Interpreter.Command != "/env/yorick" {
		t.Errorf("expected expanded command, got %s", cfg.Interpreter.Command)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/yorick",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/yorick",
		},
		{
			input:    "${GORICK_TEST_MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid environment",
			modify:  func(c *Config) { c.Environment = "staging" },
			wantErr: true,
		},
		{
			name:    "empty command",
			modify:  func(c *Config) { c.Interpreter.Command = "" },
			wantErr: true,
		},
		{
			name:    "bad text mode",
			modify:  func(c *Config) { c.Interpreter.Text = "socket" },
			wantErr: true,
		},
		{
			name:    "bad duration",
			modify:  func(c *Config) { c.Session.PromptTimeout = "soon" },
			wantErr: true,
		},
		{
			name:    "negative transcript",
			modify:  func(c *Config) { c.Session.TranscriptSize = -1 },
			wantErr: true,
		},
		{
			name:    "unknown compression",
			modify:  func(c *Config) { c.Codec.Compression = "gzip" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
