// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mountfs

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/baso53/motioncam-decoder/lib/capture"
	"github.com/baso53/motioncam-decoder/lib/dng"
	"github.com/baso53/motioncam-decoder/lib/mcraw"
)

// fuseAvailable checks whether /dev/fuse is accessible. Tests that
// need a real FUSE mount call this and skip if the device is absent.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

// encodeMetadataStreamForTest and buildMinimalEncodedFrame mirror
// lib/capture's fixture builders of the same name (see
// capture_test.go); duplicated here because test helpers are not
// importable across packages.
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

func writeTestCaptureFile(t *testing.T, dir, base string, frameCount int, withAudio bool) string {
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
	frameMeta := dng.FrameMetadata{Width: 64, Height: 4, AsShotNeutral: [3]float64{0.5, 1, 0.5}}
	for i := 0; i < frameCount; i++ {
		ref := uint16(10 * (i + 1))
		writer.AddFrame(mcraw.FrameIdentifier(1000+i), frameMeta,
			buildMinimalEncodedFrame([4]uint16{ref, ref + 1, ref + 2, ref + 3}))
	}
	if withAudio {
		writer.SetAudio(48000, 1, []int16{1, -1, 2, -2})
	}

	encoded, err := writer.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(dir, base+".mcraw")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("writing capture fixture: %v", err)
	}
	return path
}

func TestMountFlatLayout(t *testing.T) {
	fuseAvailable(t)

	root := t.TempDir()
	path := writeTestCaptureFile(t, root, "clip", 3, true)

	c, err := capture.Open(path, 5, 0)
	if err != nil {
		t.Fatalf("capture.Open: %v", err)
	}
	defer c.Close()

	mountpoint := filepath.Join(root, "mount")
	server, err := Mount(Options{
		Mountpoint: mountpoint,
		Captures:   []*capture.Capture{c},
		Flat:       true,
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})

	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}
	for _, want := range []string{"clip_000000.dng", "clip_000001.dng", "clip_000002.dng", "clip.wav"} {
		if !names[want] {
			t.Errorf("missing entry %q in flat mount, got %v", want, names)
		}
	}
}

func TestMountNestedLayoutAndUniformSize(t *testing.T) {
	fuseAvailable(t)

	root := t.TempDir()
	path := writeTestCaptureFile(t, root, "clip", 3, false)

	c, err := capture.Open(path, 5, 0)
	if err != nil {
		t.Fatalf("capture.Open: %v", err)
	}
	defer c.Close()

	mountpoint := filepath.Join(root, "mount")
	server, err := Mount(Options{
		Mountpoint: mountpoint,
		Captures:   []*capture.Capture{c},
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})

	entries, err := os.ReadDir(filepath.Join(mountpoint, "clip"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ReadDir(/clip) has %d entries, want 3", len(entries))
	}

	info0, err := os.Stat(filepath.Join(mountpoint, "clip", "clip_000000.dng"))
	if err != nil {
		t.Fatalf("Stat frame 0: %v", err)
	}
	info2, err := os.Stat(filepath.Join(mountpoint, "clip", "clip_000002.dng"))
	if err != nil {
		t.Fatalf("Stat frame 2: %v", err)
	}
	if info0.Size() != info2.Size() {
		t.Errorf("frame sizes differ: %d vs %d, want equal (S4)", info0.Size(), info2.Size())
	}

	data, err := os.ReadFile(filepath.Join(mountpoint, "clip", "clip_000001.dng"))
	if err != nil {
		t.Fatalf("ReadFile frame 1: %v", err)
	}
	if int64(len(data)) != info0.Size() {
		t.Errorf("read %d bytes, want %d", len(data), info0.Size())
	}
	if !bytes.HasPrefix(data, []byte("II")) {
		t.Error("DNG blob does not start with the little-endian TIFF byte order marker")
	}
}

func TestMountUnknownPathNotFound(t *testing.T) {
	fuseAvailable(t)

	root := t.TempDir()
	path := writeTestCaptureFile(t, root, "clip", 1, false)

	c, err := capture.Open(path, 5, 0)
	if err != nil {
		t.Fatalf("capture.Open: %v", err)
	}
	defer c.Close()

	mountpoint := filepath.Join(root, "mount")
	server, err := Mount(Options{
		Mountpoint: mountpoint,
		Captures:   []*capture.Capture{c},
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})

	if _, err := os.Stat(filepath.Join(mountpoint, "nonexistent")); !os.IsNotExist(err) {
		t.Errorf("Stat(nonexistent capture) = %v, want ENOENT", err)
	}
	if _, err := os.Stat(filepath.Join(mountpoint, "clip", "nonexistent.dng")); !os.IsNotExist(err) {
		t.Errorf("Stat(nonexistent frame) = %v, want ENOENT", err)
	}
}

func TestMountWriteRejected(t *testing.T) {
	fuseAvailable(t)

	root := t.TempDir()
	path := writeTestCaptureFile(t, root, "clip", 1, false)

	c, err := capture.Open(path, 5, 0)
	if err != nil {
		t.Fatalf("capture.Open: %v", err)
	}
	defer c.Close()

	mountpoint := filepath.Join(root, "mount")
	server, err := Mount(Options{
		Mountpoint: mountpoint,
		Captures:   []*capture.Capture{c},
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})

	// S6 — read-only enforcement: opening a mounted frame for write
	// must fail.
	err = os.WriteFile(filepath.Join(mountpoint, "clip", "clip_000000.dng"), []byte("x"), 0o644)
	if err == nil {
		t.Error("write to a mounted frame file succeeded, want error")
	}
}

func TestMountRejectsMismatchedFlatConfiguration(t *testing.T) {
	root := t.TempDir()
	path1 := writeTestCaptureFile(t, root, "clip1", 1, false)
	path2 := writeTestCaptureFile(t, root, "clip2", 1, false)

	c1, err := capture.Open(path1, 5, 0)
	if err != nil {
		t.Fatalf("capture.Open clip1: %v", err)
	}
	defer c1.Close()
	c2, err := capture.Open(path2, 5, 0)
	if err != nil {
		t.Fatalf("capture.Open clip2: %v", err)
	}
	defer c2.Close()

	_, err = Mount(Options{
		Mountpoint: filepath.Join(root, "mount"),
		Captures:   []*capture.Capture{c1, c2},
		Flat:       true,
	})
	if err == nil {
		t.Error("Mount with Flat and two captures succeeded, want error")
	}
}
