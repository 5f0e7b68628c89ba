// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/baso53/motioncam-decoder/lib/config"
	"github.com/baso53/motioncam-decoder/lib/dng"
	"github.com/baso53/motioncam-decoder/lib/mcraw"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encodeMetadataStreamForTest(values []uint16) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(len(values)))

	const blockSize = 64
	for i := 0; i < len(values); i += blockSize {
		var block [blockSize]uint16
		copy(block[:], values[i:])
		out = append(out, 0xF0, 0x00)
		raw := make([]byte, blockSize*2)
		for j, v := range block {
			binary.LittleEndian.PutUint16(raw[j*2:], v)
		}
		out = append(out, raw...)
	}
	return out
}

func buildMinimalEncodedFrame(refs [4]uint16) []byte {
	const headerLen = 16
	bitsStream := encodeMetadataStreamForTest([]uint16{0, 0, 0, 0})
	refsStream := encodeMetadataStreamForTest(refs[:])

	bitsOffset := headerLen
	refsOffset := bitsOffset + len(bitsStream)

	buf := make([]byte, refsOffset+len(refsStream))
	binary.LittleEndian.PutUint32(buf[0:4], 64)
	binary.LittleEndian.PutUint32(buf[4:8], 4)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(bitsOffset))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(refsOffset))
	copy(buf[bitsOffset:], bitsStream)
	copy(buf[refsOffset:], refsStream)
	return buf
}

func writeCaptureFixture(t *testing.T, dir, base string) string {
	t.Helper()
	writer := mcraw.NewWriter(dng.ContainerMetadata{
		BlackLevelPerCFA: [4]float64{64, 64, 64, 64},
		WhiteLevel:       1023,
		CFAArrangement:   dng.RGGB,
		ColorMatrix1:     [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		ColorMatrix2:     [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		ForwardMatrix1:   [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		ForwardMatrix2:   [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		Software:         "mcrawfs-test",
	})
	writer.AddFrame(mcraw.FrameIdentifier(1000),
		dng.FrameMetadata{Width: 64, Height: 4, AsShotNeutral: [3]float64{0.5, 1, 0.5}},
		buildMinimalEncodedFrame([4]uint16{10, 11, 12, 13}))

	encoded, err := writer.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(dir, base+".mcraw")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestResolveCapturesTwoArgs(t *testing.T) {
	dir := t.TempDir()
	path := writeCaptureFixture(t, dir, "clip")
	mountpoint := filepath.Join(dir, "mnt")

	captures, resolvedMountpoint, flat, err := resolveCaptures([]string{path, mountpoint}, config.Default(), discardLogger())
	if err != nil {
		t.Fatalf("resolveCaptures: %v", err)
	}
	defer captures[0].Close()

	if !flat {
		t.Error("flat = false, want true for the two-argument invocation shape")
	}
	if resolvedMountpoint != mountpoint {
		t.Errorf("mountpoint = %q, want %q", resolvedMountpoint, mountpoint)
	}
	if len(captures) != 1 || captures[0].Base() != "clip" {
		t.Errorf("captures = %v, want one capture named clip", captures)
	}
}

func TestScanMcrawDirectory(t *testing.T) {
	dir := t.TempDir()
	writeCaptureFixture(t, dir, "clip-a")
	writeCaptureFixture(t, dir, "clip-b")

	captures, mountpoint, flat, err := scanMcrawDirectory(dir, config.Default(), discardLogger())
	if err != nil {
		t.Fatalf("scanMcrawDirectory: %v", err)
	}
	defer func() {
		for _, c := range captures {
			c.Close()
		}
	}()

	if flat {
		t.Error("flat = true, want false for the zero-argument invocation shape")
	}
	if mountpoint != filepath.Join(dir, "mounted") {
		t.Errorf("mountpoint = %q, want a sibling \"mounted\" directory", mountpoint)
	}
	if len(captures) != 2 {
		t.Fatalf("len(captures) = %d, want 2", len(captures))
	}
}

func TestScanMcrawDirectoryEmptyIsError(t *testing.T) {
	dir := t.TempDir()
	if _, _, _, err := scanMcrawDirectory(dir, config.Default(), discardLogger()); err == nil {
		t.Error("scanMcrawDirectory on an empty directory succeeded, want error")
	}
}

func TestResolveCapturesRejectsOneArgument(t *testing.T) {
	if _, _, _, err := resolveCaptures([]string{"only-one"}, config.Default(), discardLogger()); err == nil {
		t.Error("resolveCaptures with one argument succeeded, want error")
	}
}

func TestApplyFlagOverridesOnlyTouchesChangedFlags(t *testing.T) {
	cfg := config.Default()
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var cacheDepth, threads int
	var allowOther bool
	var statsFile, statsInterval, logLevel string
	flagSet.IntVar(&cacheDepth, "cache-depth", 0, "")
	flagSet.IntVar(&threads, "threads", 0, "")
	flagSet.BoolVar(&allowOther, "allow-other", false, "")
	flagSet.StringVar(&statsFile, "stats-file", "", "")
	flagSet.StringVar(&statsInterval, "stats-interval", "", "")
	flagSet.StringVar(&logLevel, "log-level", "", "")

	if err := flagSet.Parse([]string{"--threads", "4"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	originalDepth := cfg.Cache.Depth
	applyFlagOverrides(cfg, flagSet, cacheDepth, threads, allowOther, statsFile, statsInterval, logLevel)

	if cfg.Cache.Depth != originalDepth {
		t.Errorf("cache.depth changed to %d, want untouched %d (flag not passed)", cfg.Cache.Depth, originalDepth)
	}
	if cfg.Mount.Threads != 4 {
		t.Errorf("mount.threads = %d, want 4 (flag passed)", cfg.Mount.Threads)
	}
}
