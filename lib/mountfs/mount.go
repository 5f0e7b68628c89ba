// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mountfs is the FUSE adapter (spec.md C6): it translates
// filesystem callbacks into namespace lookups and reads against one or
// more lib/capture.Capture values. Grounded on the teacher's
// lib/artifact/fuse and lib/artifactstore/fuse mount packages — same
// gofuse.Inode embedding, same gofuse.Mount option shape —
// generalized from their tag/CAS namespace to this repository's
// capture/frame/wav namespace. Directory listings come from go-fuse's
// default readdir over the children each node registers in OnAdd.
package mountfs

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/baso53/motioncam-decoder/lib/capture"
	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// Captures is the set of opened captures to expose. Must be
	// non-empty.
	Captures []*capture.Capture

	// Flat mounts a single capture's frame and audio files directly
	// at the mount root, with no capture-name subdirectory — spec.md
	// §6 invocation shape 1. Valid only when len(Captures) == 1;
	// Mount returns an error otherwise.
	Flat bool

	// Threads enables go-fuse's multi-threaded request loop when
	// greater than 1. The mutex discipline in lib/capture (spec.md
	// §5) is what makes this safe; the default is single-threaded
	// cooperative serving, matching spec.md §5's baseline model.
	Threads int

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a text logger to
	// stderr that emits only error-level messages is used.
	Logger *slog.Logger
}

// Mount mounts the capture filesystem at the configured mountpoint.
// The caller must call Unmount on the returned Server when done. The
// mountpoint directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountfs: mountpoint is required")
	}
	if len(options.Captures) == 0 {
		return nil, fmt.Errorf("mountfs: at least one capture is required")
	}
	if options.Flat && len(options.Captures) != 1 {
		return nil, fmt.Errorf("mountfs: flat layout requires exactly one capture, got %d", len(options.Captures))
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("mountfs: creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{options: &options}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:         "mcrawfs",
			Name:           filepath.Base(options.Mountpoint),
			AllowOther:     options.AllowOther,
			SingleThreaded: options.Threads <= 1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mountfs: mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("mcrawfs mounted",
		"mountpoint", options.Mountpoint,
		"captures", len(options.Captures),
		"flat", options.Flat,
	)
	return server, nil
}
