// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides mcrawfs's standard CBOR encoding
// configuration.
//
// The container envelope (lib/mcraw) and the capture fingerprint
// (lib/capture) both need a compact, deterministic binary encoding;
// this package provides the shared CBOR encoding and decoding modes
// so both encode identically without duplicating configuration. The
// monitor's stats snapshot is JSON (encoding/json) and does not use
// this package. The
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes.
//
// For buffer-oriented operations (envelope records):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// Types in this repository use `cbor` struct tags exclusively —
// there is no JSON-speaking external client, so the `json`-tag
// fallback fxamacker/cbor provides is unused here.
package codec
