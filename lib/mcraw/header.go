// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcraw reads and writes the .mcraw container envelope: a
// length-prefixed record stream holding one container-wide metadata
// header, an ordered sequence of raw encoded frames with per-frame
// metadata, and a trailing audio block. No wire format for this
// container is named anywhere in the retrieved corpus, so this
// package defines one self-consistent envelope that implements
// exactly the container-reader surface the frame cache and mount
// model need (Open, Frames, Metadata, LoadFrame, LoadAudio); see
// DESIGN.md.
package mcraw

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/baso53/motioncam-decoder/lib/codec"
	"github.com/baso53/motioncam-decoder/lib/dng"
)

// magic is the 8-byte identifier at the start of every envelope.
var magic = [8]byte{'M', 'C', 'R', 'A', 'W', 'G', 'O', '1'}

// ContainerHeader is the container-wide metadata snapshot stored once
// at the front of the envelope, plus the audio format and frame count
// needed to walk the rest of the stream.
type ContainerHeader struct {
	Metadata          dng.ContainerMetadata `cbor:"metadata"`
	FrameCount        int                   `cbor:"frame_count"`
	AudioSampleRateHz int                   `cbor:"audio_sample_rate_hz,omitempty"`
	AudioChannels     int                   `cbor:"audio_channels,omitempty"`
}

// audioBlock is the trailing CBOR record: sample rate, channel count,
// and interleaved PCM16 samples. Absent (zero-length on the wire)
// when the capture has no audio.
type audioBlock struct {
	SampleRateHz int     `cbor:"sample_rate_hz"`
	Channels     int     `cbor:"channels"`
	Samples      []int16 `cbor:"samples"`
}

// FrameIdentifier is the opaque per-frame key the container assigns,
// stored on the wire as an int64 nanosecond tick. Consumers treat it
// as opaque: only equality and the list order from [Container.Frames]
// are meaningful.
type FrameIdentifier int64

func readExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readUint32(r io.Reader) (uint32, error) {
	buf, err := readExact(r, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// writeLengthPrefixedCBOR CBOR-encodes v and writes it as a uint32-LE
// length prefix followed by the encoded bytes.
func writeLengthPrefixedCBOR(w io.Writer, v any) error {
	encoded, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("mcraw: encoding %T: %w", v, err)
	}
	if err := writeUint32(w, uint32(len(encoded))); err != nil {
		return err
	}
	_, err = w.Write(encoded)
	return err
}

// readLengthPrefixedCBOR reads a uint32-LE length prefix followed by
// that many bytes and CBOR-decodes them into v.
func readLengthPrefixedCBOR(r io.Reader, v any) error {
	length, err := readUint32(r)
	if err != nil {
		return err
	}
	encoded, err := readExact(r, int(length))
	if err != nil {
		return err
	}
	return codec.Unmarshal(encoded, v)
}
