// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the mount
// daemon.
//
// A config file is optional — mcrawfs mounts with nothing but a
// capture path and built-in defaults. When --config is given,
// [LoadFile] loads it and overrides the fields it sets; flags parsed
// after loading override the file in turn. Precedence is therefore
// flag > config file > [Default].
//
// The only variable expansion performed is of ${VAR} and
// ${VAR:-default} patterns: [LoadFile] applies it to mount.stats_file,
// and [ExpandPath] applies it to any given path.
//
// Key exports:
//
//   - [Config] -- Cache, Log, and Mount settings
//   - [Default] -- the built-in configuration
//   - [LoadFile] -- loads and merges a YAML config file
//
// This package depends on no other packages in this repository.
package config
