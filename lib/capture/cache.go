// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import "sync"

// FrameCache is a FIFO-evicting bounded map from frame filename to
// serialized DNG bytes. The zero value is not usable; construct with
// NewFrameCache. Safe for concurrent use: a single mutex guards the
// map, the FIFO, and the uniform-size slot together, per spec.md §5 —
// they are one invariant block, not three independently-locked
// fields.
type FrameCache struct {
	mu sync.Mutex

	depth   int
	blobs   map[string][]byte
	fifo    []string
	uniform int // 0 until the first successful insert
}

// NewFrameCache returns an empty cache bounded to depth entries.
// depth must be positive.
func NewFrameCache(depth int) *FrameCache {
	if depth <= 0 {
		depth = 1
	}
	return &FrameCache{
		depth: depth,
		blobs: make(map[string][]byte, depth),
	}
}

// Lookup returns the cached blob for name, if present. Non-mutating.
func (c *FrameCache) Lookup(name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blob, ok := c.blobs[name]
	return blob, ok
}

// Insert adds name/blob to the cache, evicting the oldest entry first
// if the cache is already at capacity. Callers must only insert after
// a Lookup miss — re-inserting an existing key is undefined behavior,
// per spec.md §4.4.
func (c *FrameCache) Insert(name string, blob []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.fifo) >= c.depth {
		oldest := c.fifo[0]
		c.fifo = c.fifo[1:]
		delete(c.blobs, oldest)
	}
	c.blobs[name] = blob
	c.fifo = append(c.fifo, name)

	if c.uniform == 0 {
		c.uniform = len(blob)
	}
}

// UniformSize returns the byte length observed on the first successful
// insert for the lifetime of the cache, and whether that has happened
// yet. Monotonic: once set, it never changes.
func (c *FrameCache) UniformSize() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uniform, c.uniform != 0
}

// Len reports the current number of cached entries, for tests and the
// capture monitor's occupancy reporting.
func (c *FrameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fifo)
}

// Contents returns a snapshot of the FIFO insertion order, oldest
// first, for the capture monitor's dashboard.
func (c *FrameCache) Contents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.fifo))
	copy(out, c.fifo)
	return out
}

// Depth reports the cache's configured capacity, for the capture
// monitor's "K of depth" occupancy display.
func (c *FrameCache) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth
}
