// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mcraw

import (
	"os"

	"github.com/baso53/motioncam-decoder/lib/codec"
	"github.com/baso53/motioncam-decoder/lib/dng"
	"github.com/baso53/motioncam-decoder/lib/mcerr"
)

// frameRecord locates one frame's metadata and payload within the
// open file, discovered once during the forward scan in Open.
type frameRecord struct {
	metadataOffset int64
	metadataLen    uint32
	payloadOffset  int64
	payloadLen     uint32
}

// Container is an open .mcraw envelope. A single forward scan at Open
// indexes every frame's byte offsets; LoadFrame thereafter seeks
// directly to the recorded offsets instead of re-scanning. Not safe
// for concurrent use — callers serialize access with a mutex, per
// spec.md §5 (lib/capture does this).
type Container struct {
	file   *os.File
	header ContainerHeader

	frames  []FrameIdentifier
	records map[FrameIdentifier]frameRecord

	audioOffset int64
	audioLen    uint32
}

// Open validates the magic, decodes the header, and indexes every
// frame record's offset with one forward scan. .mcraw files are not
// indexed at the end, matching the streaming nature of a camera
// capture. A truncated file, whose scan runs past the end of the
// data, fails to open with a ContainerOpenFailed error.
func Open(path string) (*Container, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, mcerr.ContainerOpenFailed(err, "opening %s", path)
	}

	container := &Container{
		file:    file,
		records: make(map[FrameIdentifier]frameRecord),
	}
	if err := container.scan(); err != nil {
		file.Close()
		return nil, err
	}
	return container, nil
}

func (c *Container) scan() error {
	var offset int64

	magicBuf, err := readExact(c.file, len(magic))
	if err != nil {
		return mcerr.ContainerOpenFailed(err, "reading magic")
	}
	offset += int64(len(magicBuf))
	if [8]byte(magicBuf) != magic {
		return mcerr.ContainerOpenFailed(nil, "bad magic %q, want %q", magicBuf, magic[:])
	}

	headerLen, err := readUint32(c.file)
	if err != nil {
		return mcerr.ContainerOpenFailed(err, "reading header length")
	}
	offset += 4
	headerBytes, err := readExact(c.file, int(headerLen))
	if err != nil {
		return mcerr.ContainerOpenFailed(err, "reading header")
	}
	offset += int64(headerLen)
	if err := codec.Unmarshal(headerBytes, &c.header); err != nil {
		return mcerr.ContainerOpenFailed(err, "decoding header")
	}

	for i := 0; i < c.header.FrameCount; i++ {
		idBytes, err := readExact(c.file, 8)
		if err != nil {
			return mcerr.ContainerOpenFailed(err, "reading frame identifier %d", i)
		}
		offset += 8
		id := FrameIdentifier(int64(
			uint64(idBytes[0]) | uint64(idBytes[1])<<8 | uint64(idBytes[2])<<16 | uint64(idBytes[3])<<24 |
				uint64(idBytes[4])<<32 | uint64(idBytes[5])<<40 | uint64(idBytes[6])<<48 | uint64(idBytes[7])<<56,
		))

		metadataLen, err := readUint32(c.file)
		if err != nil {
			return mcerr.ContainerOpenFailed(err, "reading metadata length for frame %d", i)
		}
		offset += 4
		metadataOffset := offset
		if _, err := c.file.Seek(int64(metadataLen), 1); err != nil {
			return mcerr.ContainerOpenFailed(err, "skipping metadata for frame %d", i)
		}
		offset += int64(metadataLen)

		payloadLen, err := readUint32(c.file)
		if err != nil {
			return mcerr.ContainerOpenFailed(err, "reading payload length for frame %d", i)
		}
		offset += 4
		payloadOffset := offset
		if _, err := c.file.Seek(int64(payloadLen), 1); err != nil {
			return mcerr.ContainerOpenFailed(err, "skipping payload for frame %d", i)
		}
		offset += int64(payloadLen)

		if _, exists := c.records[id]; exists {
			return mcerr.ContainerOpenFailed(nil, "duplicate frame identifier %d", id)
		}
		c.frames = append(c.frames, id)
		c.records[id] = frameRecord{
			metadataOffset: metadataOffset,
			metadataLen:    metadataLen,
			payloadOffset:  payloadOffset,
			payloadLen:     payloadLen,
		}
	}

	audioLen, err := readUint32(c.file)
	if err != nil {
		return mcerr.ContainerOpenFailed(err, "reading audio block length")
	}
	offset += 4
	c.audioOffset = offset
	c.audioLen = audioLen

	return nil
}

// Close releases the underlying file handle.
func (c *Container) Close() error {
	return c.file.Close()
}

// Frames returns the ordered frame identifier list, matching insertion
// order on the wire.
func (c *Container) Frames() []FrameIdentifier {
	return c.frames
}

// Metadata returns the container-wide metadata snapshot.
func (c *Container) Metadata() dng.ContainerMetadata {
	return c.header.Metadata
}

// LoadFrame reads one frame's raw encoded buffer and per-frame
// metadata. Not safe for concurrent use.
func (c *Container) LoadFrame(id FrameIdentifier) ([]byte, dng.FrameMetadata, error) {
	record, ok := c.records[id]
	if !ok {
		return nil, dng.FrameMetadata{}, mcerr.NotFound("no frame with identifier %d", id)
	}

	if _, err := c.file.Seek(record.metadataOffset, 0); err != nil {
		return nil, dng.FrameMetadata{}, mcerr.FrameDecodeFailed(err, "seeking to metadata for frame %d", id)
	}
	metadataBytes, err := readExact(c.file, int(record.metadataLen))
	if err != nil {
		return nil, dng.FrameMetadata{}, mcerr.FrameDecodeFailed(err, "reading metadata for frame %d", id)
	}
	var metadata dng.FrameMetadata
	if err := codec.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, dng.FrameMetadata{}, mcerr.FrameDecodeFailed(err, "decoding metadata for frame %d", id)
	}

	if _, err := c.file.Seek(record.payloadOffset, 0); err != nil {
		return nil, dng.FrameMetadata{}, mcerr.FrameDecodeFailed(err, "seeking to payload for frame %d", id)
	}
	payload, err := readExact(c.file, int(record.payloadLen))
	if err != nil {
		return nil, dng.FrameMetadata{}, mcerr.FrameDecodeFailed(err, "reading payload for frame %d", id)
	}

	return payload, metadata, nil
}

// LoadAudio decodes the trailing audio block into interleaved PCM16
// samples. Returns a nil slice and zero sample rate/channel count when
// the capture carries no audio (a zero-length audio block on disk).
func (c *Container) LoadAudio() (samples []int16, sampleRateHz int, channels int, err error) {
	if c.audioLen == 0 {
		return nil, 0, 0, nil
	}

	if _, err := c.file.Seek(c.audioOffset, 0); err != nil {
		return nil, 0, 0, mcerr.FrameDecodeFailed(err, "seeking to audio block")
	}
	audioBytes, err := readExact(c.file, int(c.audioLen))
	if err != nil {
		return nil, 0, 0, mcerr.FrameDecodeFailed(err, "reading audio block")
	}

	var block audioBlock
	if err := codec.Unmarshal(audioBytes, &block); err != nil {
		return nil, 0, 0, mcerr.FrameDecodeFailed(err, "decoding audio block")
	}
	return block.Samples, block.SampleRateHz, block.Channels, nil
}
