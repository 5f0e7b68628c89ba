// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dng packs a decoded raw sensor frame into a single-IFD,
// uncompressed, single-strip DNG (TIFF/EP) byte stream.
//
// No DNG or general TIFF library appears anywhere in this
// repository's example corpus, so this package builds the byte
// stream directly with encoding/binary; see DESIGN.md for that
// justification.
package dng

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// CFAArrangement identifies the 2x2 Bayer mosaic of a sensor.
type CFAArrangement string

const (
	RGGB CFAArrangement = "rggb"
	BGGR CFAArrangement = "bggr"
	GRBG CFAArrangement = "grbg"
	GBRG CFAArrangement = "gbrg"
)

// cfaPattern maps an arrangement to the four-entry CFAPattern tag
// value, using R=0, G=1, B=2.
var cfaPattern = map[CFAArrangement][4]byte{
	RGGB: {0, 1, 1, 2},
	BGGR: {2, 1, 1, 0},
	GRBG: {1, 0, 2, 1},
	GBRG: {1, 2, 0, 1},
}

// ContainerMetadata holds the per-capture fields that are constant
// across every frame of a capture. Struct tags give it a stable CBOR
// encoding so lib/mcraw can serialize it as-is inside a
// ContainerHeader record.
type ContainerMetadata struct {
	BlackLevelPerCFA [4]float64     `cbor:"black_level_per_cfa"`
	WhiteLevel       float64        `cbor:"white_level"`
	CFAArrangement   CFAArrangement `cbor:"cfa_arrangement"`
	ColorMatrix1     [9]float64     `cbor:"color_matrix_1"`
	ColorMatrix2     [9]float64     `cbor:"color_matrix_2"`
	ForwardMatrix1   [9]float64     `cbor:"forward_matrix_1"`
	ForwardMatrix2   [9]float64     `cbor:"forward_matrix_2"`
	Orientation      *uint16        `cbor:"orientation,omitempty"`
	Software         string         `cbor:"software,omitempty"`
}

// FrameMetadata holds the fields specific to one frame.
type FrameMetadata struct {
	Width         int        `cbor:"width"`
	Height        int        `cbor:"height"`
	AsShotNeutral [3]float64 `cbor:"as_shot_neutral"`
}

// ErrUnknownCFAArrangement is returned when ContainerMetadata names
// an arrangement outside rggb/bggr/grbg/gbrg.
var ErrUnknownCFAArrangement = fmt.Errorf("dng: unknown CFA arrangement")

// TIFF tag IDs used by this writer.
const (
	tagNewSubfileType            = 0x00FE
	tagImageWidth                = 0x0100
	tagImageLength               = 0x0101
	tagBitsPerSample             = 0x0102
	tagCompression               = 0x0103
	tagPhotometricInterpretation = 0x0106
	tagOrientation               = 0x0112
	tagSamplesPerPixel           = 0x0115
	tagRowsPerStrip              = 0x0116
	tagStripOffsets              = 0x0111
	tagStripByteCounts           = 0x0117
	tagPlanarConfiguration       = 0x011C
	tagSoftware                  = 0x0131
	tagCFARepeatPatternDim       = 0x828D
	tagCFAPattern                = 0x828E
	tagDNGVersion                = 0xC612
	tagDNGBackwardVersion        = 0xC613
	tagUniqueCameraModel         = 0xC614
	tagCFALayout                 = 0xC617
	tagActiveArea                = 0xC68D
	tagBlackLevelRepeatDim       = 0xC619
	tagBlackLevel                = 0xC61A
	tagWhiteLevel                = 0xC61D
	tagColorMatrix1              = 0xC621
	tagColorMatrix2              = 0xC622
	tagAsShotNeutral             = 0xC628
	tagCalibrationIlluminant1    = 0xC65A
	tagCalibrationIlluminant2    = 0xC65B
	tagForwardMatrix1            = 0xC714
	tagForwardMatrix2            = 0xC715
)

const (
	tiffByte      = 1
	tiffASCII     = 2
	tiffShort     = 3
	tiffLong      = 4
	tiffRational  = 5
	tiffSRational = 10
)

var tiffTypeSize = map[uint16]uint32{
	tiffByte:      1,
	tiffASCII:     1,
	tiffShort:     2,
	tiffLong:      4,
	tiffRational:  8,
	tiffSRational: 8,
}

// entry is one not-yet-finalized IFD entry: tag, TIFF type, element
// count, and the already-byte-encoded value (in little-endian).
type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

// Pack serializes one decoded raw frame into a DNG byte stream per
// the tag set and ordering required by the frame-image contract:
// DNG version 1.4.0.0 / backward 1.1.0.0, little-endian, a single
// uncompressed CFA strip, BitsPerSample 16.
func Pack(container ContainerMetadata, frame FrameMetadata, samples []uint16) ([]byte, error) {
	pattern, ok := cfaPattern[container.CFAArrangement]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCFAArrangement, container.CFAArrangement)
	}
	if len(samples) != frame.Width*frame.Height {
		return nil, fmt.Errorf("dng: sample count %d does not match %d x %d", len(samples), frame.Width, frame.Height)
	}

	blackLevel := [4]uint16{}
	for i, v := range container.BlackLevelPerCFA {
		blackLevel[i] = uint16(roundHalfAwayFromZero(v))
	}

	entries := []entry{
		{tagNewSubfileType, tiffLong, 1, encodeLongs(0)},
		{tagImageWidth, tiffLong, 1, encodeLongs(uint32(frame.Width))},
		{tagImageLength, tiffLong, 1, encodeLongs(uint32(frame.Height))},
		{tagBitsPerSample, tiffShort, 1, encodeShorts(16)},
		{tagCompression, tiffShort, 1, encodeShorts(1)},
		{tagPhotometricInterpretation, tiffShort, 1, encodeShorts(32803)}, // CFA
		{tagSamplesPerPixel, tiffShort, 1, encodeShorts(1)},
		{tagRowsPerStrip, tiffLong, 1, encodeLongs(uint32(frame.Height))},
		{tagPlanarConfiguration, tiffShort, 1, encodeShorts(1)}, // contiguous
		{tagCFARepeatPatternDim, tiffShort, 2, encodeShorts(2, 2)},
		{tagCFAPattern, tiffByte, 4, []byte{pattern[0], pattern[1], pattern[2], pattern[3]}},
		{tagCFALayout, tiffShort, 1, encodeShorts(1)}, // rectangular
		{tagDNGVersion, tiffByte, 4, []byte{1, 4, 0, 0}},
		{tagDNGBackwardVersion, tiffByte, 4, []byte{1, 1, 0, 0}},
		{tagUniqueCameraModel, tiffASCII, uint32(len("MotionCam") + 1), append([]byte("MotionCam"), 0)},
		{tagBlackLevelRepeatDim, tiffShort, 2, encodeShorts(2, 2)},
		{tagBlackLevel, tiffShort, 4, encodeShorts(blackLevel[0], blackLevel[1], blackLevel[2], blackLevel[3])},
		{tagWhiteLevel, tiffLong, 1, encodeLongs(uint32(roundHalfAwayFromZero(container.WhiteLevel)))},
		{tagColorMatrix1, tiffSRational, 9, encodeSRationals(container.ColorMatrix1[:])},
		{tagColorMatrix2, tiffSRational, 9, encodeSRationals(container.ColorMatrix2[:])},
		{tagForwardMatrix1, tiffSRational, 9, encodeSRationals(container.ForwardMatrix1[:])},
		{tagForwardMatrix2, tiffSRational, 9, encodeSRationals(container.ForwardMatrix2[:])},
		{tagAsShotNeutral, tiffRational, 3, encodeRationals(frame.AsShotNeutral[:])},
		{tagCalibrationIlluminant1, tiffShort, 1, encodeShorts(21)}, // D65
		{tagCalibrationIlluminant2, tiffShort, 1, encodeShorts(17)}, // standard A
		{tagActiveArea, tiffLong, 4, encodeLongs(0, 0, uint32(frame.Height), uint32(frame.Width))},
	}
	if container.Orientation != nil {
		entries = append(entries, entry{tagOrientation, tiffShort, 1, encodeShorts(*container.Orientation)})
	}
	if container.Software != "" {
		entries = append(entries, entry{tagSoftware, tiffASCII, uint32(len(container.Software) + 1), append([]byte(container.Software), 0)})
	}

	stripData := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(stripData[i*2:], v)
	}
	// StripOffsets/StripByteCounts values are patched in after layout
	// is known, below; reserve their slots now so sort order is final.
	entries = append(entries,
		entry{tagStripOffsets, tiffLong, 1, encodeLongs(0)},
		entry{tagStripByteCounts, tiffLong, 1, encodeLongs(uint32(len(stripData)))},
	)

	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	return writeTIFF(entries, tagStripOffsets, stripData)
}

// writeTIFF lays out a classic (not BigTIFF) little-endian file with
// one IFD: header, IFD, an extra-value area for entries whose value
// exceeds 4 bytes, then the strip. stripOffsetsTag names the entry
// whose 4-byte inline value must be patched to the strip's final
// file offset once that offset is known.
func writeTIFF(entries []entry, stripOffsetsTag uint16, stripData []byte) ([]byte, error) {
	const ifdStart = 8
	ifdLen := uint32(2 + 12*len(entries) + 4)
	extraAreaStart := ifdStart + ifdLen

	extra := &bytes.Buffer{}
	inlineValue := make([][4]byte, len(entries))
	for i, e := range entries {
		wantSize := tiffTypeSize[e.typ] * e.count
		if uint32(len(e.value)) != wantSize {
			return nil, fmt.Errorf("dng: tag 0x%04X value is %d bytes, want %d", e.tag, len(e.value), wantSize)
		}
		if len(e.value) <= 4 {
			copy(inlineValue[i][:], e.value)
			continue
		}
		offset := extraAreaStart + uint32(extra.Len())
		binary.LittleEndian.PutUint32(inlineValue[i][:], offset)
		extra.Write(e.value)
		if extra.Len()%2 != 0 {
			extra.WriteByte(0) // word-align the next extra value
		}
	}

	stripOffset := extraAreaStart + uint32(extra.Len())
	for i, e := range entries {
		if e.tag == stripOffsetsTag {
			binary.LittleEndian.PutUint32(inlineValue[i][:], stripOffset)
		}
	}

	buf := &bytes.Buffer{}
	buf.WriteString("II")
	writeU16(buf, 42)
	writeU32(buf, ifdStart)

	writeU16(buf, uint16(len(entries)))
	for i, e := range entries {
		writeU16(buf, e.tag)
		writeU16(buf, e.typ)
		writeU32(buf, e.count)
		buf.Write(inlineValue[i][:])
	}
	writeU32(buf, 0) // no next IFD

	buf.Write(extra.Bytes())
	buf.Write(stripData)

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

func encodeShorts(vals ...uint16) []byte {
	out := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

func encodeLongs(vals ...uint32) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// rationalDenominator is the fixed denominator used for every
// RATIONAL/SRATIONAL value this package emits; it gives six decimal
// digits of precision, ample for color matrices and white balance.
const rationalDenominator = 1_000_000

func encodeRationals(vals []float64) []byte {
	out := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*8:], uint32(roundHalfAwayFromZero(v*rationalDenominator)))
		binary.LittleEndian.PutUint32(out[i*8+4:], rationalDenominator)
	}
	return out
}

func encodeSRationals(vals []float64) []byte {
	out := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*8:], uint32(int32(roundHalfAwayFromZero(v*rationalDenominator))))
		binary.LittleEndian.PutUint32(out[i*8+4:], uint32(rationalDenominator))
	}
	return out
}

func roundHalfAwayFromZero(f float64) int64 {
	if f >= 0 {
		return int64(f + 0.5)
	}
	return int64(f - 0.5)
}
