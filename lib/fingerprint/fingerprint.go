// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint gives each mounted capture a short, stable
// identifier for log lines and the monitor dashboard, so two captures
// that happen to share a base name (mounted from different
// directories, or remounted after the file changed) are distinguishable.
package fingerprint

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// ID is a 32-byte BLAKE3 keyed digest.
type ID [32]byte

// captureDomainKey separates this package's hash domain from any
// other use of BLAKE3 keyed hashing that might be linked into the
// same binary. The byte values are the ASCII encoding of the domain
// name, zero-padded to 32 bytes, so the key is inspectable in hex
// dumps without weakening BLAKE3's keyed mode (which treats the key
// as an opaque 32-byte value).
var captureDomainKey = [32]byte{
	'm', 'c', 'r', 'a', 'w', 'f', 's', '.', 'c', 'a', 'p', 't', 'u', 'r', 'e', 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Capture computes a stable identifier for a mounted container from
// its header bytes and on-disk file size. It is not a content hash of
// the entire file — reading the whole container just to name it would
// defeat the point of a lazily decoded filesystem — so two captures
// with identical headers but different frame data can collide. Callers
// that need this to disambiguate log lines accept that tradeoff; it is
// not used for correctness.
func Capture(headerBytes []byte, fileSize int64) ID {
	hasher, err := blake3.NewKeyed(captureDomainKey[:])
	if err != nil {
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(headerBytes)
	var sizeBuf [8]byte
	for i := range sizeBuf {
		sizeBuf[i] = byte(fileSize >> (8 * i))
	}
	hasher.Write(sizeBuf[:])

	var id ID
	copy(id[:], hasher.Sum(nil))
	return id
}

// Short returns the first 8 hex characters of the identifier, the form
// used in log fields and the monitor dashboard.
func (id ID) Short() string {
	return hex.EncodeToString(id[:4])
}

// String returns the full hex-encoded identifier.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Parse parses a 64-character hex string into an ID.
func Parse(hexString string) (ID, error) {
	var id ID
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return id, fmt.Errorf("fingerprint: parsing id: %w", err)
	}
	if len(decoded) != 32 {
		return id, fmt.Errorf("fingerprint: id is %d bytes, want 32", len(decoded))
	}
	copy(id[:], decoded)
	return id, nil
}
