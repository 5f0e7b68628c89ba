// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor implements the mount daemon's periodic stats
// snapshot (spec.md §4.8) and the terminal dashboard that polls it.
// The snapshot file is the only interface between cmd/mcrawfs and
// cmd/mcrawfs-monitor — the monitor never talks to the mount daemon
// directly, so there is no new IPC surface to reason about.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/baso53/motioncam-decoder/lib/capture"
)

// CaptureSnapshot is one mounted capture's state at the moment the
// snapshot was taken.
type CaptureSnapshot struct {
	Base                string   `json:"base"`
	ID                  string   `json:"id"`
	FrameCount          int      `json:"frame_count"`
	CacheDepth          int      `json:"cache_depth"`
	CacheOccupied       int      `json:"cache_occupied"`
	CacheContents       []string `json:"cache_contents"`
	DecodeCount         int64    `json:"decode_count"`
	LastDecodeLatencyMS float64  `json:"last_decode_latency_ms"`
	LastError           string   `json:"last_error,omitempty"`
}

// Snapshot is the full JSON document written to --stats-file.
type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Mountpoint  string            `json:"mountpoint"`
	Captures    []CaptureSnapshot `json:"captures"`
}

// BuildSnapshot assembles a Snapshot from the mount daemon's live
// capture set. Called once per tick of the daemon's --stats-interval
// timer (cmd/mcrawfs), never by the monitor binary.
func BuildSnapshot(now time.Time, mountpoint string, captures []*capture.Capture) Snapshot {
	out := Snapshot{
		GeneratedAt: now,
		Mountpoint:  mountpoint,
		Captures:    make([]CaptureSnapshot, len(captures)),
	}
	for i, c := range captures {
		stats := c.Stats()
		lastError := ""
		if stats.LastError != nil {
			lastError = stats.LastError.Error()
		}
		out.Captures[i] = CaptureSnapshot{
			Base:                stats.Base,
			ID:                  stats.ID.Short(),
			FrameCount:          stats.FrameCount,
			CacheDepth:          stats.CacheDepth,
			CacheOccupied:       stats.CacheOccupied,
			CacheContents:       stats.CacheContents,
			DecodeCount:         stats.DecodeCount,
			LastDecodeLatencyMS: float64(stats.LastDecodeLatency) / float64(time.Millisecond),
			LastError:           lastError,
		}
	}
	return out
}

// WriteFile serializes snap as indented JSON and atomically replaces
// path: written to a temp file alongside path, then renamed, so a
// concurrent reader (cmd/mcrawfs-monitor) never observes a partially
// written snapshot.
func WriteFile(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("monitor: marshaling snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("monitor: creating temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("monitor: writing temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("monitor: closing temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("monitor: replacing %s: %w", path, err)
	}
	return nil
}

// ReadFile loads and parses a snapshot file written by WriteFile.
func ReadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("monitor: reading %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("monitor: parsing %s: %w", path, err)
	}
	return snap, nil
}
