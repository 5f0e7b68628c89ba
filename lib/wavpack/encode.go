// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wavpack writes a minimal RIFF/WAVE container around
// interleaved 16-bit PCM audio.
//
// No WAV or general RIFF library appears anywhere in this
// repository's example corpus, so this package builds the byte
// stream directly with encoding/binary; see DESIGN.md for that
// justification.
package wavpack

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	bitsPerSample  = 16
	audioFormatPCM = 1
)

// Encode serializes interleaved PCM16 samples (channels-interleaved,
// i.e. len(samples) must be a multiple of channels) into a
// single-fmt-chunk, single-data-chunk WAV byte stream.
func Encode(sampleRateHz, channels int, samples []int16) ([]byte, error) {
	if sampleRateHz <= 0 {
		return nil, fmt.Errorf("wavpack: sample rate must be positive, got %d", sampleRateHz)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("wavpack: channel count must be positive, got %d", channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("wavpack: sample count %d is not a multiple of channel count %d", len(samples), channels)
	}

	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRateHz * blockAlign
	dataSize := len(samples) * 2

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	writeU32(buf, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeU32(buf, 16)
	writeU16(buf, audioFormatPCM)
	writeU16(buf, uint16(channels))
	writeU32(buf, uint32(sampleRateHz))
	writeU32(buf, uint32(byteRate))
	writeU16(buf, uint16(blockAlign))
	writeU16(buf, bitsPerSample)

	buf.WriteString("data")
	writeU32(buf, uint32(dataSize))
	for _, s := range samples {
		writeU16(buf, uint16(s))
	}

	return buf.Bytes(), nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
