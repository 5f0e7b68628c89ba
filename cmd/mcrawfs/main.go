// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// mcrawfs is the mount daemon: it opens one or more .mcraw capture
// files and exposes their frames as synthesized DNG files (plus a WAV
// audio file) through a read-only FUSE filesystem.
//
// Two invocation shapes (spec.md §6):
//
//	mcrawfs <input.mcraw> <mountpoint>   single capture, flat layout
//	mcrawfs                              scan the executable's directory
//	                                      for *.mcraw, mount all of them
//	                                      under a sibling directory
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/baso53/motioncam-decoder/lib/capture"
	"github.com/baso53/motioncam-decoder/lib/clock"
	"github.com/baso53/motioncam-decoder/lib/config"
	"github.com/baso53/motioncam-decoder/lib/monitor"
	"github.com/baso53/motioncam-decoder/lib/mountfs"
	"github.com/baso53/motioncam-decoder/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath    string
		cacheDepth    int
		threads       int
		allowOther    bool
		statsFile     string
		statsInterval string
		logLevel      string
	)

	flagSet := pflag.NewFlagSet("mcrawfs", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	flagSet.IntVar(&cacheDepth, "cache-depth", 0, "frames retained per capture before eviction (unset = use config/default)")
	flagSet.IntVar(&threads, "threads", 0, "FUSE worker threads; 1 is single-threaded (unset = use config/default)")
	flagSet.BoolVar(&allowOther, "allow-other", false, "allow other users to access the mount (requires user_allow_other)")
	flagSet.StringVar(&statsFile, "stats-file", "", "write a periodic JSON stats snapshot to this path (optional)")
	flagSet.StringVar(&statsInterval, "stats-interval", "", "how often to rewrite --stats-file, e.g. \"1s\" (unset = use config/default)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error (unset = use config/default)")
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

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyFlagOverrides(cfg, flagSet, cacheDepth, threads, allowOther, statsFile, statsInterval, logLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	args := flagSet.Args()
	captures, mountpoint, flat, err := resolveCaptures(args, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range captures {
			if err := c.Close(); err != nil {
				logger.Warn("closing capture", "capture", c.Base(), "error", err)
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := mountfs.Mount(mountfs.Options{
		Mountpoint: mountpoint,
		Captures:   captures,
		Flat:       flat,
		Threads:    cfg.Mount.Threads,
		AllowOther: cfg.Mount.AllowOther,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("mounting FUSE filesystem: %w", err)
	}
	defer func() {
		if err := server.Unmount(); err != nil {
			logger.Error("failed to unmount FUSE filesystem", "error", err)
		} else {
			logger.Info("FUSE filesystem unmounted", "mountpoint", mountpoint)
		}
	}()

	if cfg.Mount.StatsFile != "" {
		interval, err := time.ParseDuration(cfg.Mount.StatsInterval)
		if err != nil {
			return fmt.Errorf("parsing stats_interval %q: %w", cfg.Mount.StatsInterval, err)
		}
		stop := runStatsWriter(ctx, clock.Real(), interval, cfg.Mount.StatsFile, mountpoint, captures, logger)
		defer stop()
	}

	logger.Info("mcrawfs mounted",
		"mountpoint", mountpoint,
		"captures", len(captures),
		"flat", flat,
		"cache_depth", cfg.Cache.Depth,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// applyFlagOverrides applies only the flags the user actually passed
// on top of cfg (which already holds config-file or default values),
// matching spec.md §4.7's "flag > config file > default" precedence.
func applyFlagOverrides(cfg *config.Config, flagSet *pflag.FlagSet, cacheDepth, threads int, allowOther bool, statsFile, statsInterval, logLevel string) {
	if flagSet.Changed("cache-depth") {
		cfg.Cache.Depth = cacheDepth
	}
	if flagSet.Changed("threads") {
		cfg.Mount.Threads = threads
	}
	if flagSet.Changed("allow-other") {
		cfg.Mount.AllowOther = allowOther
	}
	if flagSet.Changed("stats-file") {
		cfg.Mount.StatsFile = statsFile
	}
	if flagSet.Changed("stats-interval") {
		cfg.Mount.StatsInterval = statsInterval
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveCaptures implements spec.md §6's two invocation shapes: two
// positional arguments opens and flat-mounts exactly one capture;
// zero arguments scans the executable's own directory for *.mcraw and
// mounts all of them, nested, under a sibling "mounted" directory.
func resolveCaptures(args []string, cfg *config.Config, logger *slog.Logger) (captures []*capture.Capture, mountpoint string, flat bool, err error) {
	switch len(args) {
	case 2:
		path, mountpoint := args[0], args[1]
		c, err := capture.Open(path, cfg.Cache.Depth, cfg.Cache.PrefetchAhead)
		if err != nil {
			return nil, "", false, fmt.Errorf("opening %s: %w", path, err)
		}
		return []*capture.Capture{c}, mountpoint, true, nil

	case 0:
		exe, err := os.Executable()
		if err != nil {
			return nil, "", false, fmt.Errorf("locating executable directory: %w", err)
		}
		return scanMcrawDirectory(filepath.Dir(exe), cfg, logger)

	default:
		return nil, "", false, fmt.Errorf("expected either no arguments or exactly <input.mcraw> <mountpoint>, got %d arguments", len(args))
	}
}

// scanMcrawDirectory implements the body of spec.md §6's zero-argument
// invocation shape given an already-resolved directory, separated out
// from resolveCaptures so it can be tested without faking
// os.Executable.
func scanMcrawDirectory(dir string, cfg *config.Config, logger *slog.Logger) (captures []*capture.Capture, mountpoint string, flat bool, err error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.mcraw"))
	if err != nil {
		return nil, "", false, fmt.Errorf("scanning %s for *.mcraw: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, "", false, fmt.Errorf("no .mcraw files found in %s", dir)
	}

	opened := make([]*capture.Capture, 0, len(matches))
	for _, path := range matches {
		c, err := capture.Open(path, cfg.Cache.Depth, cfg.Cache.PrefetchAhead)
		if err != nil {
			for _, already := range opened {
				already.Close()
			}
			return nil, "", false, fmt.Errorf("opening %s: %w", path, err)
		}
		opened = append(opened, c)
		logger.Info("opened capture", "path", path, "frames", len(c.Readdir()))
	}
	return opened, filepath.Join(dir, "mounted"), false, nil
}

// runStatsWriter starts a goroutine that rewrites statsPath every
// interval until ctx is done. Returns a function the caller should
// defer to block until the goroutine has exited.
func runStatsWriter(ctx context.Context, clk clock.Clock, interval time.Duration, statsPath, mountpoint string, captures []*capture.Capture, logger *slog.Logger) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := clk.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				snap := monitor.BuildSnapshot(now, mountpoint, captures)
				if err := monitor.WriteFile(statsPath, snap); err != nil {
					logger.Warn("writing stats file", "path", statsPath, "error", err)
				}
			}
		}
	}()
	return func() { <-done }
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `mcrawfs — read-only FUSE filesystem over .mcraw camera captures.

Usage:
  mcrawfs <input.mcraw> <mountpoint>   mount one capture, flat layout
  mcrawfs                              mount every *.mcraw next to the
                                        executable, nested under a
                                        sibling "mounted" directory

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
