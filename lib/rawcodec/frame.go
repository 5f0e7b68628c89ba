// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rawcodec

import (
	"encoding/binary"
	"fmt"
)

// headerLen is the fixed size of an EncodedFrame's header: four
// little-endian uint32 fields.
const headerLen = 16

// metadataOffset is where the row-quad payload begins. The header
// occupies the first 16 bytes; the bits/references stream offsets
// recorded in the header point elsewhere in the buffer.
const metadataOffset = headerLen

// MalformedFrameError reports a self-check failure in an
// EncodedFrame: an invalid header, an inconsistent stream length, or
// a buffer under-run while walking the payload.
type MalformedFrameError struct {
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("rawcodec: malformed frame: %s", e.Reason)
}

func malformed(format string, args ...any) error {
	return &MalformedFrameError{Reason: fmt.Sprintf(format, args...)}
}

// frameHeader is the 16-byte little-endian header prefixing an
// EncodedFrame buffer.
type frameHeader struct {
	encodedWidth  uint32
	encodedHeight uint32
	bitsOffset    uint32
	refsOffset    uint32
}

func parseFrameHeader(buf []byte) (frameHeader, error) {
	if len(buf) < headerLen {
		return frameHeader{}, malformed("buffer shorter than header (%d bytes)", len(buf))
	}
	h := frameHeader{
		encodedWidth:  binary.LittleEndian.Uint32(buf[0:4]),
		encodedHeight: binary.LittleEndian.Uint32(buf[4:8]),
		bitsOffset:    binary.LittleEndian.Uint32(buf[8:12]),
		refsOffset:    binary.LittleEndian.Uint32(buf[12:16]),
	}
	if h.encodedWidth%BlockSize != 0 {
		return frameHeader{}, malformed("encoded_width %d is not a multiple of %d", h.encodedWidth, BlockSize)
	}
	if h.encodedHeight%4 != 0 {
		return frameHeader{}, malformed("encoded_height %d is not a multiple of 4", h.encodedHeight)
	}
	if int(h.bitsOffset) > len(buf) || int(h.refsOffset) > len(buf) {
		return frameHeader{}, malformed("stream offset exceeds buffer length %d", len(buf))
	}
	return h, nil
}

// decodeMetadataStream reads a recursively block-coded sequence of
// uint16 values: a 4-byte count prefix followed by ceil(count/64)
// blocks, each prefixed by its own 2-byte (bit-width, reference)
// header. The reference is added to all 64 decoded residues of its
// block before only the needed prefix is kept — a block always
// yields a full 64 values even when fewer than 64 remain wanted.
func decodeMetadataStream(buf []byte, offset int) ([]uint16, error) {
	if offset+4 > len(buf) {
		return nil, malformed("metadata stream count prefix exceeds buffer at offset %d", offset)
	}
	count := binary.LittleEndian.Uint32(buf[offset : offset+4])
	offset += 4

	values := make([]uint16, count)
	for i := uint32(0); i < count; i += BlockSize {
		if offset+2 > len(buf) {
			return nil, malformed("metadata block header truncated at offset %d", offset)
		}
		b0, b1 := buf[offset], buf[offset+1]
		bits := int(b0 >> 4)
		reference := uint16(b0&0x0F)<<8 | uint16(b1)
		offset += 2

		block, consumed, err := DecodeBlock(bits, buf[offset:])
		if err != nil {
			return nil, malformed("metadata block at offset %d: %v", offset, err)
		}
		offset += consumed

		n := BlockSize
		if remaining := count - i; remaining < BlockSize {
			n = int(remaining)
		}
		for j := 0; j < n; j++ {
			values[i+uint32(j)] = block[j] + reference
		}
	}
	return values, nil
}

// Decode expands an EncodedFrame buffer into a requestedWidth ×
// requestedHeight row-major image of 16-bit samples, per the
// row-quad payload walk and four-row interleave described in the
// package's frame format. It returns a *MalformedFrameError if the
// header is invalid, the bits and references streams disagree in
// length, or any block under-runs the buffer.
func Decode(requestedWidth, requestedHeight int, buf []byte) ([]uint16, error) {
	header, err := parseFrameHeader(buf)
	if err != nil {
		return nil, err
	}
	if int(header.encodedWidth) < requestedWidth {
		return nil, malformed("encoded_width %d is smaller than requested_width %d", header.encodedWidth, requestedWidth)
	}

	bits, err := decodeMetadataStream(buf, int(header.bitsOffset))
	if err != nil {
		return nil, err
	}
	refs, err := decodeMetadataStream(buf, int(header.refsOffset))
	if err != nil {
		return nil, err
	}
	if len(bits) != len(refs) {
		return nil, malformed("bits stream length %d disagrees with refs stream length %d", len(bits), len(refs))
	}

	quadsX := int(header.encodedWidth) / BlockSize
	quadsY := int(header.encodedHeight) / 4
	wantLen := quadsX * quadsY * 4
	if len(bits) != wantLen {
		return nil, malformed("metadata stream length %d does not match expected %d", len(bits), wantLen)
	}

	out := make([]uint16, requestedWidth*requestedHeight)
	offset := metadataOffset
	metaIdx := 0

	for y := 0; y < int(header.encodedHeight); y += 4 {
		for x := 0; x < int(header.encodedWidth); x += BlockSize {
			var blocks [4][BlockSize]uint16
			for row := 0; row < 4; row++ {
				b := int(bits[metaIdx+row])
				r := refs[metaIdx+row]
				decoded, consumed, derr := DecodeBlock(b, buf[offset:])
				if derr != nil {
					return nil, malformed("payload block at offset %d (row-quad y=%d x=%d row=%d): %v", offset, y, x, row, derr)
				}
				offset += consumed
				for i := 0; i < BlockSize; i++ {
					decoded[i] += r
				}
				blocks[row] = decoded
			}
			metaIdx += 4

			p0, p1, p2, p3 := blocks[0], blocks[1], blocks[2], blocks[3]
			var row0, row1, row2, row3 [BlockSize]uint16
			for i := 0; i < 32; i++ {
				row0[2*i], row0[2*i+1] = p0[i], p1[i]
				row1[2*i], row1[2*i+1] = p2[i], p3[i]
				row2[2*i], row2[2*i+1] = p0[32+i], p1[32+i]
				row3[2*i], row3[2*i+1] = p2[32+i], p3[32+i]
			}

			if x >= requestedWidth {
				continue
			}
			copyWidth := BlockSize
			if x+copyWidth > requestedWidth {
				copyWidth = requestedWidth - x
			}
			assembled := [4][BlockSize]uint16{row0, row1, row2, row3}
			for row := 0; row < 4; row++ {
				outY := y + row
				if outY >= requestedHeight {
					continue
				}
				dst := out[outY*requestedWidth+x : outY*requestedWidth+x+copyWidth]
				copy(dst, assembled[row][:copyWidth])
			}
		}
	}

	return out, nil
}
