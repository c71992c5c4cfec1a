// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the configuration of a companion connection.
//
// Configuration is loaded from a single file named by either the
// GORICK_CONFIG environment variable (via [Load]) or an explicit path
// (via [LoadFile]). There is no search path and no per-field
// environment override. Files ending in .toml are parsed as TOML; all
// others as YAML.
//
// The file may carry development and production sections that
// override session settings when [Config].Environment matches.
// Production turns debugging and tracing off unless its section says
// otherwise.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${GORICK_ROOT}, and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- master struct with Interpreter, Session, Codec
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Supervisor] and [Config.CodecOptions] -- the settings in
//     the form the supervisor and wire packages take
package config
