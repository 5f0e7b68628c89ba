// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rawcodec

import (
	"encoding/binary"
	"testing"
)

// encodeMetadataStreamForTest builds a recursive block-coded stream
// using only the bit-width-16 raw kernel (nibble 15), which keeps
// fixture construction simple at the cost of density — fine for
// tests, which never ship the encoded bytes anywhere.
func encodeMetadataStreamForTest(values []uint16) []byte {
	var out []byte
	count := make([]byte, 4)
	binary.LittleEndian.PutUint32(count, uint32(len(values)))
	out = append(out, count...)

	for i := 0; i < len(values); i += BlockSize {
		var block [BlockSize]uint16
		n := copy(block[:], values[i:])
		_ = n
		out = append(out, 0xF0, 0x00) // nibble 15 -> bit-width 16, reference 0
		out = append(out, encodeBlockForTest(16, block)...)
	}
	return out
}

func buildEncodedFrame(encodedWidth, encodedHeight uint32, payload []byte, bits, refs []uint16) []byte {
	bitsStream := encodeMetadataStreamForTest(bits)
	refsStream := encodeMetadataStreamForTest(refs)

	bitsOffset := headerLen + len(payload)
	refsOffset := bitsOffset + len(bitsStream)

	buf := make([]byte, refsOffset+len(refsStream))
	binary.LittleEndian.PutUint32(buf[0:4], encodedWidth)
	binary.LittleEndian.PutUint32(buf[4:8], encodedHeight)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(bitsOffset))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(refsOffset))
	copy(buf[headerLen:], payload)
	copy(buf[bitsOffset:], bitsStream)
	copy(buf[refsOffset:], refsStream)
	return buf
}

// S3 — minimal frame: one row-quad, bit-width 0, references [10,20,30,40].
func TestScenarioS3MinimalFrame(t *testing.T) {
	buf := buildEncodedFrame(64, 4, nil,
		[]uint16{0, 0, 0, 0},
		[]uint16{10, 20, 30, 40},
	)

	got, err := Decode(64, 4, buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 64*4 {
		t.Fatalf("len(got) = %d, want %d", len(got), 64*4)
	}

	row := func(y int) []uint16 { return got[y*64 : (y+1)*64] }
	for x := 0; x < 64; x += 2 {
		if row(0)[x] != 10 || row(0)[x+1] != 20 {
			t.Fatalf("row0[%d:%d] = %d,%d, want 10,20", x, x+1, row(0)[x], row(0)[x+1])
		}
		if row(1)[x] != 30 || row(1)[x+1] != 40 {
			t.Fatalf("row1[%d:%d] = %d,%d, want 30,40", x, x+1, row(1)[x], row(1)[x+1])
		}
		if row(2)[x] != 10 || row(2)[x+1] != 20 {
			t.Fatalf("row2[%d:%d] = %d,%d, want 10,20", x, x+1, row(2)[x], row(2)[x+1])
		}
		if row(3)[x] != 30 || row(3)[x+1] != 40 {
			t.Fatalf("row3[%d:%d] = %d,%d, want 30,40", x, x+1, row(3)[x], row(3)[x+1])
		}
	}
}

// Invariant 2 — frame decode shape: decoded image has exactly
// requestedWidth*requestedHeight samples, and a narrower request
// discards the right margin without affecting the kept columns.
func TestFrameDecodeShapeDiscardsMargin(t *testing.T) {
	bits := []uint16{8, 8, 8, 8}
	refs := []uint16{0, 0, 0, 0}
	payload := make([]byte, 0)
	for row := 0; row < 4; row++ {
		var block [BlockSize]uint16
		for i := range block {
			block[i] = uint16(row*100 + i)
		}
		payload = append(payload, encodeBlockForTest(8, block)...)
	}

	buf := buildEncodedFrame(64, 4, payload, bits, refs)

	full, err := Decode(64, 4, buf)
	if err != nil {
		t.Fatalf("Decode(full): %v", err)
	}
	if len(full) != 64*4 {
		t.Fatalf("len(full) = %d, want %d", len(full), 64*4)
	}

	narrow, err := Decode(40, 4, buf)
	if err != nil {
		t.Fatalf("Decode(narrow): %v", err)
	}
	if len(narrow) != 40*4 {
		t.Fatalf("len(narrow) = %d, want %d", len(narrow), 40*4)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 40; x++ {
			if narrow[y*40+x] != full[y*64+x] {
				t.Fatalf("narrow[%d,%d] = %d, want %d", y, x, narrow[y*40+x], full[y*64+x])
			}
		}
	}
}

// Invariant 3 — bits and references streams must decode to equal
// length, and that length must equal (encW/64)*(encH/4)*4.
func TestFrameRejectsStreamLengthMismatch(t *testing.T) {
	buf := buildEncodedFrame(64, 4, nil,
		[]uint16{0, 0, 0}, // wrong length: 3, not 4
		[]uint16{10, 20, 30, 40},
	)
	_, err := Decode(64, 4, buf)
	if err == nil {
		t.Fatal("expected malformed-frame error for mismatched stream lengths")
	}
	if _, ok := err.(*MalformedFrameError); !ok {
		t.Fatalf("expected *MalformedFrameError, got %T", err)
	}
}

// Invariant 4 — reference addition: decoded[i] = residue[i] + reference.
func TestReferenceAddition(t *testing.T) {
	var block [BlockSize]uint16
	for i := range block {
		block[i] = uint16(i % 16)
	}
	const reference = uint16(100)
	stream := make([]byte, 4)
	binary.LittleEndian.PutUint32(stream, BlockSize)
	stream = append(stream, 0x40|byte(reference>>8), byte(reference&0xFF)) // bit-width 4
	stream = append(stream, encodeBlockForTest(4, block)...)
	got, err := decodeMetadataStream(stream, 0)
	if err != nil {
		t.Fatalf("decodeMetadataStream: %v", err)
	}
	if len(got) != BlockSize {
		t.Fatalf("len(got) = %d, want %d", len(got), BlockSize)
	}
	for i, v := range got {
		want := uint16(i%16) + reference
		if v != want {
			t.Fatalf("got[%d] = %d, want %d", i, v, want)
		}
	}
}

func TestFrameRejectsBadHeader(t *testing.T) {
	buf := buildEncodedFrame(63, 4, nil, []uint16{0}, []uint16{0})
	if _, err := Decode(63, 4, buf); err == nil {
		t.Fatal("expected malformed-frame error for encoded_width not a multiple of 64")
	}
}
