// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/baso53/motioncam-decoder/lib/clock"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	rowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
)

// pollMsg carries a freshly read snapshot (or the error from trying
// to read one) from a poll tick to Update.
type pollMsg struct {
	snapshot Snapshot
	err      error
}

// Model is a read-only bubbletea dashboard over a mount daemon's
// --stats-file. It never writes to the file or otherwise talks to the
// daemon — polling is the entire interface.
type Model struct {
	path     string
	interval clock.Clock

	pollEvery   time.Duration
	lastError   error
	latest      Snapshot
	haveReading bool
}

// pollInterval is fixed rather than configurable: the dashboard is a
// diagnostic tool, not a production consumer, and a fixed cadence
// keeps its tea.Cmd wiring simple.
const pollInterval = 500 * time.Millisecond

// NewModel returns a dashboard polling path at a fixed interval. clk
// lets tests drive the poll loop deterministically; production passes
// clock.Real().
func NewModel(path string, clk clock.Clock) Model {
	return Model{path: path, interval: clk, pollEvery: pollInterval}
}

func (m Model) Init() tea.Cmd {
	return m.pollOnce()
}

func (m Model) pollOnce() tea.Cmd {
	path := m.path
	return func() tea.Msg {
		snapshot, err := ReadFile(path)
		return pollMsg{snapshot: snapshot, err: err}
	}
}

func (m Model) scheduleNextPoll() tea.Cmd {
	ticker := m.interval.NewTicker(m.pollEvery)
	path := m.path
	return func() tea.Msg {
		<-ticker.C
		ticker.Stop()
		snapshot, err := ReadFile(path)
		return pollMsg{snapshot: snapshot, err: err}
	}
}

func (m Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch message.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case pollMsg:
		if message.err != nil {
			m.lastError = message.err
		} else {
			m.lastError = nil
			m.latest = message.snapshot
			m.haveReading = true
		}
		return m, m.scheduleNextPoll()
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("mcrawfs monitor"))
	b.WriteString("\n")

	if !m.haveReading {
		if m.lastError != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("waiting for stats file: %v", m.lastError)))
		} else {
			b.WriteString(footerStyle.Render("waiting for first snapshot..."))
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(footerStyle.Render(fmt.Sprintf("mountpoint: %s  updated: %s",
		m.latest.Mountpoint, m.latest.GeneratedAt.Format("15:04:05"))))
	b.WriteString("\n\n")

	captures := make([]CaptureSnapshot, len(m.latest.Captures))
	copy(captures, m.latest.Captures)
	sort.Slice(captures, func(i, j int) bool { return captures[i].Base < captures[j].Base })

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-20s %8s %10s %8s %10s %-8s", "CAPTURE", "ID", "FRAMES", "CACHE", "DECODES", "LAST(ms)")))
	b.WriteString("\n")

	for _, c := range captures {
		cache := fmt.Sprintf("%d/%d", c.CacheOccupied, c.CacheDepth)
		row := fmt.Sprintf("%-20s %8s %10d %8s %10d %-8.1f",
			truncate(c.Base, 20), c.ID, c.FrameCount, cache, c.DecodeCount, c.LastDecodeLatencyMS)
		if c.LastError != "" {
			b.WriteString(errorStyle.Render(row + "  error: " + c.LastError))
		} else {
			b.WriteString(rowStyle.Render(row))
		}
		b.WriteString("\n")
	}

	if m.lastError != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("last poll failed: %v (showing previous reading)", m.lastError)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("q to quit"))
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
