// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/gorick/lib/companiontest"
	"github.com/bureau-foundation/gorick/lib/config"
	"github.com/bureau-foundation/gorick/lib/handle"
	"github.com/bureau-foundation/gorick/lib/process"
	"github.com/bureau-foundation/gorick/lib/supervisor"
	"github.com/bureau-foundation/gorick/lib/version"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "--version":
			fmt.Printf("gorick-companion %s\n", version.Info())
			return
		case "check":
			if err := check(args[1:], os.Stdout); err != nil {
				process.Fatal(err)
			}
			return
		}
	}
	// A --banner given on the command line overrides this one.
	os.Exit(companiontest.Main(append([]string{"--banner", version.Banner("gorick-companion")}, args...)))
}

// newLogger writes text records to a terminal and JSON records
// otherwise.
func newLogger(level slog.Level) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func check(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("check", pflag.ContinueOnError)
	configPath := flags.String("config", "", "configuration file (default $"+config.EnvVar+")")
	expression := flags.String("eval", "1+1", "expression to evaluate")
	timeout := flags.Duration("timeout", 30*time.Second, "overall time limit")
	verbose := flags.BoolP("verbose", "v", false, "log at debug level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	supervisorConfig, err := cfg.Supervisor()
	if err != nil {
		return err
	}
	codecOptions, err := cfg.CodecOptions()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose || cfg.Session.Trace {
		level = slog.LevelDebug
	}
	logger := newLogger(level).With("command", "check", "companion", supervisorConfig.Command)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	started := time.Now()
	conn, err := handle.Open(ctx, supervisorConfig,
		handle.WithLogger(logger),
		handle.WithCodecOptions(codecOptions),
		handle.WithSupervisorOptions(supervisor.WithOutput(io.Discard)),
	)
	if err != nil {
		return fmt.Errorf("starting companion: %w", err)
	}
	defer conn.Kill()
	logger.Info("companion started", "elapsed", time.Since(started))

	if cfg.Session.Debug {
		if err := conn.Debug(ctx, true); err != nil {
			return err
		}
	}
	value, err := conn.Eval(ctx, *expression)
	if err != nil {
		var remote *handle.RemoteError
		if errors.As(err, &remote) {
			logger.Error("evaluation failed", "expression", *expression, "output", remote.Text)
		}
		return err
	}
	if h, ok := value.(*handle.Hold); ok {
		info, err := h.Info(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s = %s\n", *expression, info)
		if err := h.Release(ctx); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(stdout, "%s = %v\n", *expression, value)
	}

	if err := conn.Exec(ctx, "quit"); err != nil {
		return err
	}
	logger.Info("check passed", "elapsed", time.Since(started))
	return nil
}
