// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/gorick/lib/supervisor"
	"github.com/bureau-foundation/gorick/lib/wire"
)

// EnvVar names the configuration file for [Load].
const EnvVar = "GORICK_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local work; diagnostics follow the file.
	Development Environment = "development"
	// Production quiets diagnostics by default.
	Production Environment = "production"
)

// Config is the master configuration for a companion connection.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment" toml:"environment"`

	// Root is the base directory for relative companion paths and the
	// value of ${GORICK_ROOT}.
	Root string `yaml:"root" toml:"root"`

	Interpreter InterpreterConfig `yaml:"interpreter" toml:"interpreter"`
	Session     SessionConfig     `yaml:"session" toml:"session"`
	Codec       CodecConfig       `yaml:"codec" toml:"codec"`

	Development *SessionOverrides `yaml:"development,omitempty" toml:"development,omitempty"`
	Production  *SessionOverrides `yaml:"production,omitempty" toml:"production,omitempty"`
}

// InterpreterConfig describes the companion process.
type InterpreterConfig struct {
	// Command is the companion executable, resolved through PATH.
	// Default: yorick
	Command string `yaml:"command" toml:"command"`

	// Arguments precede the two descriptor numbers, normally the flags
	// that load the bootstrap code.
	Arguments []string `yaml:"arguments" toml:"arguments"`

	// Extra follow the descriptor numbers.
	Extra []string `yaml:"extra" toml:"extra"`

	// Dir is the companion's working directory. Empty inherits.
	Dir string `yaml:"dir" toml:"dir"`

	// Text is "pty" or "pipe".
	// Default: pty
	Text string `yaml:"text" toml:"text"`

	// Startup is "interactive" or "batch".
	// Default: interactive
	Startup string `yaml:"startup" toml:"startup"`
}

// SessionConfig tunes the conversation with the companion.
type SessionConfig struct {
	// Debug turns on the companion's own protocol diagnostics.
	Debug bool `yaml:"debug" toml:"debug"`

	// Trace logs every packet at debug level.
	Trace bool `yaml:"trace" toml:"trace"`

	// KillGrace is how long to wait for the companion to quit.
	// Default: 2s
	KillGrace string `yaml:"kill_grace" toml:"kill_grace"`

	// PromptTimeout bounds each wait for a prompt. Empty or "0" waits
	// forever.
	PromptTimeout string `yaml:"prompt_timeout" toml:"prompt_timeout"`

	// TranscriptSize is the number of bytes of companion text kept for
	// error reports.
	// Default: 262144
	TranscriptSize int `yaml:"transcript_size" toml:"transcript_size"`

	// ForwardInterrupts relays host SIGINT to the companion while a
	// request is blocked.
	ForwardInterrupts bool `yaml:"forward_interrupts" toml:"forward_interrupts"`

	// Protocol overrides the bootstrap commands and prompts. Empty
	// fields keep the defaults.
	Protocol supervisor.Protocol `yaml:"protocol" toml:"protocol"`
}

// SessionOverrides are session fields an environment section can set.
type SessionOverrides struct {
	Debug         *bool  `yaml:"debug,omitempty" toml:"debug,omitempty"`
	Trace         *bool  `yaml:"trace,omitempty" toml:"trace,omitempty"`
	KillGrace     string `yaml:"kill_grace,omitempty" toml:"kill_grace,omitempty"`
	PromptTimeout string `yaml:"prompt_timeout,omitempty" toml:"prompt_timeout,omitempty"`
}

// CodecConfig configures value encoding.
type CodecConfig struct {
	// Fallback sends values with no wire form as opaque blobs.
	// Default: true
	Fallback bool `yaml:"fallback" toml:"fallback"`

	// Compression is auto, none, lz4, or zstd.
	// Default: auto
	Compression string `yaml:"compression" toml:"compression"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Root:        filepath.Join(homeDir, ".cache", "gorick"),
		Interpreter: InterpreterConfig{
			Command: "yorick",
			Text:    string(supervisor.TextPTY),
			Startup: string(supervisor.Interactive),
		},
		Session: SessionConfig{
			KillGrace:      supervisor.DefaultKillGrace.String(),
			TranscriptSize: supervisor.DefaultTranscriptSize,
			Protocol:       supervisor.DefaultProtocol(),
		},
		Codec: CodecConfig{
			Fallback:    true,
			Compression: wire.CompressAuto.String(),
		},
	}
}

// Load loads configuration from the file named by GORICK_CONFIG.
// There are no fallbacks: if GORICK_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your gorick config file", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current
// config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section for c.Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *SessionOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			off := false
			overrides = &SessionOverrides{Debug: &off, Trace: &off}
		}
	}

	if overrides == nil {
		return
	}
	if overrides.Debug != nil {
		c.Session.Debug = *overrides.Debug
	}
	if overrides.Trace != nil {
		c.Session.Trace = *overrides.Trace
	}
	if overrides.KillGrace != "" {
		c.Session.KillGrace = overrides.KillGrace
	}
	if overrides.PromptTimeout != "" {
		c.Session.PromptTimeout = overrides.PromptTimeout
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"GORICK_ROOT": c.Root,
		"HOME":        os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["GORICK_ROOT"] = c.Root

	c.Interpreter.Command = expandVars(c.Interpreter.Command, vars)
	c.Interpreter.Dir = expandVars(c.Interpreter.Dir, vars)
	for i, argument := range c.Interpreter.Arguments {
		c.Interpreter.Arguments[i] = expandVars(argument, vars)
	}
	for i, argument := range c.Interpreter.Extra {
		c.Interpreter.Extra[i] = expandVars(argument, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, looking in
// vars before the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Interpreter.Command == "" {
		errs = append(errs, errors.New("interpreter.command is required"))
	}

	if _, err := c.durations(); err != nil {
		errs = append(errs, err)
	}

	if c.Session.TranscriptSize < 0 {
		errs = append(errs, fmt.Errorf("session.transcript_size must not be negative, got %d", c.Session.TranscriptSize))
	}

	if _, err := wire.ParseCompression(c.Codec.Compression); err != nil {
		errs = append(errs, fmt.Errorf("codec.compression: %w", err))
	}

	if err := c.supervisorConfig(0, 0).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("interpreter: %w", err))
	}

	return errors.Join(errs...)
}

type timing struct {
	killGrace     time.Duration
	promptTimeout time.Duration
}

func (c *Config) durations() (timing, error) {
	var d timing
	var errs []error
	parse := func(field, value string, out *time.Duration) {
		if value == "" {
			return
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*out = parsed
	}
	parse("session.kill_grace", c.Session.KillGrace, &d.killGrace)
	parse("session.prompt_timeout", c.Session.PromptTimeout, &d.promptTimeout)
	return d, errors.Join(errs...)
}

// Supervisor returns the process settings in the form
// supervisor.Start takes. Env is left nil so the companion inherits
// the host environment.
func (c *Config) Supervisor() (supervisor.Config, error) {
	d, err := c.durations()
	if err != nil {
		return supervisor.Config{}, err
	}
	return c.supervisorConfig(d.killGrace, d.promptTimeout), nil
}

func (c *Config) supervisorConfig(killGrace, promptTimeout time.Duration) supervisor.Config {
	dir := c.Interpreter.Dir
	if dir != "" && !filepath.IsAbs(dir) && c.Root != "" {
		dir = filepath.Join(c.Root, dir)
	}
	return supervisor.Config{
		Command:           c.Interpreter.Command,
		Arguments:         c.Interpreter.Arguments,
		Extra:             c.Interpreter.Extra,
		Dir:               dir,
		Text:              supervisor.TextMode(c.Interpreter.Text),
		Startup:           supervisor.StartupMode(c.Interpreter.Startup),
		Protocol:          c.Session.Protocol,
		KillGrace:         killGrace,
		PromptTimeout:     promptTimeout,
		TranscriptSize:    c.Session.TranscriptSize,
		ForwardInterrupts: c.Session.ForwardInterrupts,
		Trace:             c.Session.Trace,
	}
}

// CodecOptions returns the codec settings in the form wire.NewCodec
// takes.
func (c *Config) CodecOptions() (wire.Options, error) {
	compression, err := wire.ParseCompression(c.Codec.Compression)
	if err != nil {
		return wire.Options{}, fmt.Errorf("codec.compression: %w", err)
	}
	return wire.Options{Fallback: c.Codec.Fallback, Compression: compression}, nil
}
