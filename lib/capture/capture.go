// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture implements the mount model (spec.md §4.5): the
// namespace derivation, attribute reporting, and read dispatch for one
// opened .mcraw file. It sits between the container codec
// (lib/mcraw), the frame decoder and DNG packer (lib/rawcodec,
// lib/dng), and the FUSE adapter (lib/mountfs), which never touches
// those lower layers directly.
package capture

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/baso53/motioncam-decoder/lib/codec"
	"github.com/baso53/motioncam-decoder/lib/dng"
	"github.com/baso53/motioncam-decoder/lib/fingerprint"
	"github.com/baso53/motioncam-decoder/lib/mcraw"
	"github.com/baso53/motioncam-decoder/lib/mcerr"
	"github.com/baso53/motioncam-decoder/lib/rawcodec"
	"github.com/baso53/motioncam-decoder/lib/wavpack"
)

// EntryKind classifies what a name inside a capture's directory
// refers to.
type EntryKind int

const (
	EntryNotFound EntryKind = iota
	EntryFrame
	EntryAudio
)

// Capture is one opened .mcraw file: a base name, the container it
// was read from, the derived frame/audio namespace, and a bounded
// frame cache. Immutable after Open except for its cache, per
// spec.md §3. Safe for concurrent use: mu serializes every
// load-on-miss so a second reader never observes a partially inserted
// cache entry (spec.md §5), and background prefetch goroutines take
// the same lock for the same reason.
type Capture struct {
	mu sync.Mutex

	base      string
	container *mcraw.Container
	metadata  dng.ContainerMetadata

	frames      []mcraw.FrameIdentifier
	filenames   []string
	nameToFrame map[string]mcraw.FrameIdentifier
	nameToIndex map[string]int

	wav     string
	wavData []byte

	cache         *FrameCache
	prefetchAhead int
	id            fingerprint.ID

	// Decode telemetry for the capture monitor (spec.md §4.8).
	// Guarded by mu alongside the cache's own load-on-miss section,
	// since every update happens at the same call sites.
	decodeCount       int64
	lastDecodeLatency time.Duration
	lastError         error
}

// Open opens the .mcraw file at path, validates that every frame
// shares one resolution (spec.md §9's mixed-resolution open question,
// resolved as a hard rejection), warms the cache with the first
// frame so Size can answer in O(1) before any read arrives, and
// pre-encodes any embedded audio to WAV.
//
// prefetchAhead is cache.prefetch_ahead (spec.md §4.7): after each
// read that warms or hits the cache, up to that many of the following
// frames are decoded in the background so a sequential reader rarely
// blocks on a decode. 0 disables prefetching.
func Open(path string, cacheDepth, prefetchAhead int) (*Capture, error) {
	base := stemOf(path)

	container, err := mcraw.Open(path)
	if err != nil {
		return nil, err
	}

	frames := container.Frames()
	if len(frames) == 0 {
		container.Close()
		return nil, mcerr.ContainerOpenFailed(nil, "%s: capture has no frames", base)
	}

	filenames := make([]string, len(frames))
	nameToFrame := make(map[string]mcraw.FrameIdentifier, len(frames))
	nameToIndex := make(map[string]int, len(frames))
	for i, id := range frames {
		name := frameName(base, i)
		filenames[i] = name
		nameToFrame[name] = id
		nameToIndex[name] = i
	}

	c := &Capture{
		base:          base,
		container:     container,
		metadata:      container.Metadata(),
		frames:        frames,
		filenames:     filenames,
		nameToFrame:   nameToFrame,
		nameToIndex:   nameToIndex,
		cache:         NewFrameCache(cacheDepth),
		prefetchAhead: prefetchAhead,
	}

	if err := c.validateAndWarm(); err != nil {
		container.Close()
		return nil, err
	}

	if err := c.loadAudio(); err != nil {
		container.Close()
		return nil, err
	}

	if info, statErr := os.Stat(path); statErr == nil {
		if headerBytes, marshalErr := codec.Marshal(c.metadata); marshalErr == nil {
			c.id = fingerprint.Capture(headerBytes, info.Size())
		}
	}

	return c, nil
}

// validateAndWarm reads every frame's metadata once (rejecting the
// capture if resolutions disagree) and decodes+packs frame 0 so the
// cache's uniform size is set before Open returns.
func (c *Capture) validateAndWarm() error {
	var width, height int

	for i, id := range c.frames {
		payload, frameMeta, err := c.container.LoadFrame(id)
		if err != nil {
			return err
		}
		if i == 0 {
			width, height = frameMeta.Width, frameMeta.Height
		} else if frameMeta.Width != width || frameMeta.Height != height {
			return mcerr.MixedResolution(
				"%s: frame %d is %dx%d, want %dx%d like frame 0",
				c.base, i, frameMeta.Width, frameMeta.Height, width, height)
		}

		if i == 0 {
			blob, err := c.decodeAndPack(frameMeta, payload)
			if err != nil {
				return err
			}
			c.cache.Insert(c.filenames[0], blob)
		}
	}
	return nil
}

// decodeAndPack decodes a frame's raw samples and packs them into a
// DNG blob, recording decode telemetry (spec.md §4.8) regardless of
// outcome. Callers hold c.mu for the duration (either directly, via
// loadFrameBlob, or implicitly during Open's single-threaded warmup).
func (c *Capture) decodeAndPack(frameMeta dng.FrameMetadata, payload []byte) ([]byte, error) {
	started := time.Now()
	blob, err := c.decodeAndPackLocked(frameMeta, payload)
	c.decodeCount++
	c.lastDecodeLatency = time.Since(started)
	c.lastError = err
	return blob, err
}

func (c *Capture) decodeAndPackLocked(frameMeta dng.FrameMetadata, payload []byte) ([]byte, error) {
	samples, err := rawcodec.Decode(frameMeta.Width, frameMeta.Height, payload)
	if err != nil {
		var malformed *rawcodec.MalformedFrameError
		if errors.As(err, &malformed) {
			return nil, mcerr.MalformedFrame(err, "decoding frame for %s", c.base)
		}
		return nil, mcerr.FrameDecodeFailed(err, "decoding frame for %s", c.base)
	}
	blob, err := dng.Pack(c.metadata, frameMeta, samples)
	if err != nil {
		return nil, mcerr.FrameDecodeFailed(err, "packing DNG for %s", c.base)
	}
	return blob, nil
}

func (c *Capture) loadAudio() error {
	samples, sampleRate, channels, err := c.container.LoadAudio()
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}
	wavData, err := wavpack.Encode(sampleRate, channels, samples)
	if err != nil {
		return mcerr.ContainerOpenFailed(err, "encoding audio for %s", c.base)
	}
	c.wav = wavName(c.base)
	c.wavData = wavData
	return nil
}

// Close releases the underlying container file handle.
func (c *Capture) Close() error {
	return c.container.Close()
}

// Base returns the capture's directory/filename-prefix stem.
func (c *Capture) Base() string {
	return c.base
}

// ID returns the capture's stable short identifier for log fields and
// the monitor dashboard.
func (c *Capture) ID() fingerprint.ID {
	return c.id
}

// Readdir returns the capture's entries — frame files in frame-list
// order, plus the audio file if present — not including "." and "..".
func (c *Capture) Readdir() []string {
	entries := make([]string, len(c.filenames), len(c.filenames)+1)
	copy(entries, c.filenames)
	if c.wav != "" {
		entries = append(entries, c.wav)
	}
	return entries
}

// Lookup classifies a name within this capture's directory.
func (c *Capture) Lookup(name string) EntryKind {
	if _, ok := c.nameToFrame[name]; ok {
		return EntryFrame
	}
	if c.wav != "" && name == c.wav {
		return EntryAudio
	}
	return EntryNotFound
}

// Size returns the byte length stat(path) should report for name, per
// spec.md §4.5. Frame sizes come from the cache's uniform-size slot,
// which Open guarantees is set before returning.
func (c *Capture) Size(name string) (int64, error) {
	switch c.Lookup(name) {
	case EntryAudio:
		return int64(len(c.wavData)), nil
	case EntryFrame:
		size, ok := c.cache.UniformSize()
		if !ok {
			return 0, mcerr.FrameDecodeFailed(nil, "%s: uniform size not yet established", name)
		}
		return int64(size), nil
	default:
		return 0, mcerr.NotFound("%s: no such entry in capture %s", name, c.base)
	}
}

// ReadAt copies into p the bytes of name starting at offset, decoding
// and caching the frame on a cache miss. Returns the number of bytes
// copied, which is min(len(p), blobLen-offset); 0 when offset is at
// or past the end of the blob, matching spec.md §4.5/§8 invariant 7.
func (c *Capture) ReadAt(name string, p []byte, offset int64) (int, error) {
	switch c.Lookup(name) {
	case EntryAudio:
		return copyAt(c.wavData, p, offset), nil
	case EntryFrame:
		blob, err := c.loadFrameBlob(name)
		if err != nil {
			return 0, err
		}
		return copyAt(blob, p, offset), nil
	default:
		return 0, mcerr.NotFound("%s: no such entry in capture %s", name, c.base)
	}
}

func copyAt(buf []byte, p []byte, offset int64) int {
	if offset < 0 || offset >= int64(len(buf)) {
		return 0
	}
	return copy(p, buf[offset:])
}

// loadFrameBlob returns name's cached DNG blob, decoding and inserting
// it on a miss. Holding mu across the entire lookup+decode+insert
// region is the "simplest correct implementation" spec.md §5
// describes: a second reader blocks on the first reader's insert
// rather than racing it. Before returning, it kicks off background
// prefetch of the frames following name.
func (c *Capture) loadFrameBlob(name string) ([]byte, error) {
	c.mu.Lock()

	if blob, ok := c.cache.Lookup(name); ok {
		c.mu.Unlock()
		c.triggerPrefetch(name)
		return blob, nil
	}

	id := c.nameToFrame[name]
	payload, frameMeta, err := c.container.LoadFrame(id)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	blob, err := c.decodeAndPack(frameMeta, payload)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.cache.Insert(name, blob)
	c.mu.Unlock()

	c.triggerPrefetch(name)
	return blob, nil
}

// triggerPrefetch starts one goroutine per frame following name, up to
// prefetchAhead of them, so a sequential reader's next several reads
// are usually already warm by the time they arrive. Fire-and-forget,
// matching the teacher's background-work goroutines (e.g.
// cmd/bureau-daemon/main.go) — a prefetch failure is recorded in
// telemetry like any other decode error but never returned to the
// reader that triggered it.
func (c *Capture) triggerPrefetch(name string) {
	if c.prefetchAhead <= 0 {
		return
	}
	index, ok := c.nameToIndex[name]
	if !ok {
		return
	}
	last := index + c.prefetchAhead
	if last >= len(c.filenames) {
		last = len(c.filenames) - 1
	}
	for i := index + 1; i <= last; i++ {
		go c.prefetchFrame(c.filenames[i])
	}
}

// prefetchFrame decodes and caches name if it is not already cached.
// Holds mu across the whole check+decode+insert region, exactly like
// loadFrameBlob, so a concurrent foreground read for the same frame
// can never race it into a double insert.
func (c *Capture) prefetchFrame(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cache.Lookup(name); ok {
		return
	}
	id, ok := c.nameToFrame[name]
	if !ok {
		return
	}
	payload, frameMeta, err := c.container.LoadFrame(id)
	if err != nil {
		return
	}
	blob, err := c.decodeAndPack(frameMeta, payload)
	if err != nil {
		return
	}
	c.cache.Insert(name, blob)
}

// CacheLen reports the frame cache's current occupancy, for the
// capture monitor.
func (c *Capture) CacheLen() int {
	return c.cache.Len()
}

// CacheContents returns the frame cache's FIFO contents, oldest
// first, for the capture monitor.
func (c *Capture) CacheContents() []string {
	return c.cache.Contents()
}

// Stats is a point-in-time snapshot of one capture's runtime state,
// for the mount daemon's periodic monitor.Snapshot (spec.md §4.8).
type Stats struct {
	Base              string
	ID                fingerprint.ID
	FrameCount        int
	CacheDepth        int
	CacheOccupied     int
	CacheContents     []string
	DecodeCount       int64
	LastDecodeLatency time.Duration
	LastError         error
}

// Stats reports the capture's current telemetry.
func (c *Capture) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Base:              c.base,
		ID:                c.id,
		FrameCount:        len(c.frames),
		CacheDepth:        c.cache.Depth(),
		CacheOccupied:     c.cache.Len(),
		CacheContents:     c.cache.Contents(),
		DecodeCount:       c.decodeCount,
		LastDecodeLatency: c.lastDecodeLatency,
		LastError:         c.lastError,
	}
}
