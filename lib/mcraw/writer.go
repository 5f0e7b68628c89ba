// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mcraw

import (
	"bytes"
	"fmt"

	"github.com/baso53/motioncam-decoder/lib/dng"
)

// Writer builds a complete .mcraw envelope in memory. There is no real
// .mcraw sample file anywhere in this repository, so Writer is how
// every test in lib/mcraw and lib/capture constructs one: buffer
// frames and optional audio, then Encode to get the bytes Open expects.
type Writer struct {
	metadata dng.ContainerMetadata
	frames   []pendingFrame
	audio    *audioBlock
}

type pendingFrame struct {
	id       FrameIdentifier
	metadata dng.FrameMetadata
	payload  []byte
}

// NewWriter starts a new envelope with the given container-wide
// metadata. Frames and audio are added before calling Encode.
func NewWriter(metadata dng.ContainerMetadata) *Writer {
	return &Writer{metadata: metadata}
}

// AddFrame appends one frame record. Frames are written to the
// envelope in the order they are added.
func (w *Writer) AddFrame(id FrameIdentifier, metadata dng.FrameMetadata, payload []byte) {
	w.frames = append(w.frames, pendingFrame{id: id, metadata: metadata, payload: payload})
}

// SetAudio sets the trailing audio block. Omit this call to produce a
// capture with no audio (a zero-length audio block on the wire).
func (w *Writer) SetAudio(sampleRateHz, channels int, samples []int16) {
	w.audio = &audioBlock{SampleRateHz: sampleRateHz, Channels: channels, Samples: samples}
}

// Encode serializes the buffered header, frames, and audio block into
// a complete envelope byte stream, ready to be written to a file that
// [Open] can read back.
func (w *Writer) Encode() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Write(magic[:])

	header := ContainerHeader{
		Metadata:   w.metadata,
		FrameCount: len(w.frames),
	}
	if w.audio != nil {
		header.AudioSampleRateHz = w.audio.SampleRateHz
		header.AudioChannels = w.audio.Channels
	}
	if err := writeLengthPrefixedCBOR(buf, header); err != nil {
		return nil, fmt.Errorf("mcraw: writing header: %w", err)
	}

	for _, frame := range w.frames {
		var idBytes [8]byte
		u := uint64(int64(frame.id))
		for i := range idBytes {
			idBytes[i] = byte(u >> (8 * i))
		}
		buf.Write(idBytes[:])

		if err := writeLengthPrefixedCBOR(buf, frame.metadata); err != nil {
			return nil, fmt.Errorf("mcraw: writing metadata for frame %d: %w", frame.id, err)
		}
		if err := writeUint32(buf, uint32(len(frame.payload))); err != nil {
			return nil, fmt.Errorf("mcraw: writing payload length for frame %d: %w", frame.id, err)
		}
		buf.Write(frame.payload)
	}

	if w.audio == nil {
		if err := writeUint32(buf, 0); err != nil {
			return nil, fmt.Errorf("mcraw: writing empty audio block: %w", err)
		}
	} else if err := writeLengthPrefixedCBOR(buf, w.audio); err != nil {
		return nil, fmt.Errorf("mcraw: writing audio block: %w", err)
	}

	return buf.Bytes(), nil
}
