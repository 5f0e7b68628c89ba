// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for this repository.
package testutil

import (
	"os"
	"testing"
)

// MountDir creates a temporary directory suitable for use as a FUSE
// mount point. The directory is automatically removed when the test
// completes; callers are responsible for unmounting it first.
func MountDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("", "mcrawfs-mount-*")
	if err != nil {
		t.Fatalf("creating mount directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}
