// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/baso53/motioncam-decoder/lib/clock"
)

func TestModelInitPollsBeforeFirstSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	model := NewModel(path, clock.Fake(time.Unix(0, 0)))

	cmd := model.Init()
	if cmd == nil {
		t.Fatal("Init() returned a nil command, want the initial poll")
	}

	msg := cmd()
	polled, ok := msg.(pollMsg)
	if !ok {
		t.Fatalf("Init command produced %T, want pollMsg", msg)
	}
	if polled.err == nil {
		t.Error("polling a nonexistent stats file succeeded, want an error")
	}
}

func TestModelUpdateRendersSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	snap := Snapshot{
		GeneratedAt: time.Date(2026, 8, 3, 9, 30, 0, 0, time.UTC),
		Mountpoint:  "/mnt/clip",
		Captures: []CaptureSnapshot{
			{Base: "clip", ID: "cafef00d", FrameCount: 5, CacheDepth: 4, CacheOccupied: 2, DecodeCount: 3, LastDecodeLatencyMS: 2.5},
		},
	}
	if err := WriteFile(path, snap); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	model := NewModel(path, clock.Fake(time.Unix(0, 0)))
	updated, cmd := model.Update(pollMsg{snapshot: snap})
	if cmd == nil {
		t.Fatal("Update(pollMsg) returned a nil command, want the next scheduled poll")
	}

	view := updated.(Model).View()
	if !strings.Contains(view, "clip") {
		t.Errorf("View() = %q, want it to mention capture %q", view, "clip")
	}
	if !strings.Contains(view, "/mnt/clip") {
		t.Error("View() does not mention the mountpoint")
	}
}

func TestModelUpdateKeepsPreviousReadingOnPollError(t *testing.T) {
	model := NewModel("/nonexistent/stats.json", clock.Fake(time.Unix(0, 0)))

	good := Snapshot{Mountpoint: "/mnt/clip", Captures: []CaptureSnapshot{{Base: "clip"}}}
	updated, _ := model.Update(pollMsg{snapshot: good})
	m := updated.(Model)

	updated, _ = m.Update(pollMsg{err: errors.New("simulated poll error")})
	m = updated.(Model)

	if !m.haveReading {
		t.Error("haveReading = false after a failed poll, want the previous reading retained")
	}
	if m.lastError == nil {
		t.Error("lastError is nil after a failed poll, want it recorded")
	}
	if m.latest.Mountpoint != "/mnt/clip" {
		t.Errorf("latest.Mountpoint = %q, want the previous reading preserved", m.latest.Mountpoint)
	}
}

func TestModelQuitsOnQ(t *testing.T) {
	model := NewModel("unused", clock.Fake(time.Unix(0, 0)))
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("Update(q) returned a nil command, want tea.Quit")
	}
}
