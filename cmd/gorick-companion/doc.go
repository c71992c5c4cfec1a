// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Gorick-companion is a stand-in companion interpreter. Started by a
// supervisor as
//
//	gorick-companion [flags] RFD WFD
//
// it speaks the companion protocol over the two inherited descriptors
// and its terminal, running the small array language of package
// companiontest. It lets the bridge be exercised on machines without
// the real interpreter.
//
// The check subcommand goes the other way: it loads a configuration
// file, starts the configured companion through the bridge, evaluates
// one expression, and reports the result.
//
//	gorick-companion check --config gorick.yaml --eval '1+1'
package main
