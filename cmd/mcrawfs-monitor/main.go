// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// mcrawfs-monitor is a read-only terminal dashboard over a mcrawfs
// mount daemon's --stats-file. It polls the file on a fixed interval
// and never talks to the daemon directly — there is no IPC surface
// beyond the filesystem.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/baso53/motioncam-decoder/lib/clock"
	"github.com/baso53/motioncam-decoder/lib/monitor"
	"github.com/baso53/motioncam-decoder/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var statsFile string

	flagSet := pflag.NewFlagSet("mcrawfs-monitor", pflag.ContinueOnError)
	flagSet.StringVar(&statsFile, "stats-file", "", "path to the mount daemon's --stats-file (required)")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println(version.Info())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if statsFile == "" {
		printHelp(flagSet)
		return fmt.Errorf("--stats-file is required")
	}

	model := monitor.NewModel(statsFile, clock.Real())
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `mcrawfs-monitor — terminal dashboard for a mcrawfs mount daemon.

Polls a --stats-file written by "mcrawfs --stats-file <path>" and
renders one row per mounted capture: frame count, cache fill, and the
most recent decode latency. Read-only — it never opens the mount or
talks to the daemon except by reading this one file.

Usage:
  mcrawfs-monitor --stats-file <path>

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
