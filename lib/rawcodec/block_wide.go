// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rawcodec

import (
	"encoding/binary"

	"github.com/klauspost/cpuid/v2"
)

// Bit-widths 8, 10, and 16 dominate real captures (per the reference
// decoder's own comments on typical sensor bit depth), so those three
// get a word-at-a-time unpack kernel alongside the byte-at-a-time
// scalar one above. Which kernel a given bit-width dispatches to is
// decided once at package init by inspecting the host's SIMD feature
// set — not because this code vectorizes today, but to mirror the
// reference decoder's own CPU-feature-gated dispatch (it picks
// between NEON and scalar C at compile time) and to leave the wide
// path as the natural place to grow real SIMD assembly later without
// touching DecodeBlock's call sites.
var useWideKernels = cpuid.CPU.Supports(cpuid.SSE2) || cpuid.CPU.Supports(cpuid.ASIMD)

func init() {
	if useWideKernels {
		decodeTable[8] = decode8Wide
		decodeTable[9] = decode10Wide
		decodeTable[10] = decode10Wide
		for bits := 11; bits <= MaxBitWidth; bits++ {
			decodeTable[bits] = decode16Wide
		}
	}
}

// decode8Wide is decode8Raw's word-at-a-time twin: it loads 8 bytes
// at once and unpacks them with shifts instead of indexing one byte
// at a time. Produces identical output to decode8Raw for any input.
func decode8Wide(src []byte) [BlockSize]uint16 {
	var out [BlockSize]uint16
	for g := 0; g < BlockSize/8; g++ {
		word := binary.LittleEndian.Uint64(src[g*8:])
		for k := 0; k < 8; k++ {
			out[g*8+k] = uint16(word>>(8*k)) & 0xFF
		}
	}
	return out
}

// decode16Wide is decode16Raw's word-at-a-time twin: it loads four
// 16-bit words per iteration instead of one. Produces identical
// output to decode16Raw for any input.
func decode16Wide(src []byte) [BlockSize]uint16 {
	var out [BlockSize]uint16
	for g := 0; g < BlockSize/4; g++ {
		lo := binary.LittleEndian.Uint64(src[g*8:])
		out[g*4+0] = uint16(lo)
		out[g*4+1] = uint16(lo >> 16)
		out[g*4+2] = uint16(lo >> 32)
		out[g*4+3] = uint16(lo >> 48)
	}
	return out
}

// decode10Wide is decode10's word-at-a-time twin: each of the ten
// 8-byte lanes is loaded as a single uint64 and indexed by shifting
// instead of slicing a byte at a time. Produces identical output to
// decode10 for any input.
func decode10Wide(src []byte) [BlockSize]uint16 {
	var out [BlockSize]uint16
	p0 := binary.LittleEndian.Uint64(src[0:8])
	p1 := binary.LittleEndian.Uint64(src[8:16])
	p2 := binary.LittleEndian.Uint64(src[16:24])
	p3 := binary.LittleEndian.Uint64(src[24:32])
	p4 := binary.LittleEndian.Uint64(src[32:40])
	p5 := binary.LittleEndian.Uint64(src[40:48])
	p6 := binary.LittleEndian.Uint64(src[48:56])
	p7 := binary.LittleEndian.Uint64(src[56:64])
	p8 := binary.LittleEndian.Uint64(src[64:72])
	p9 := binary.LittleEndian.Uint64(src[72:80])

	lane := func(word uint64, j int) uint16 {
		return uint16(word>>(8*j)) & 0xFF
	}

	for j := 0; j < 8; j++ {
		r0 := lane(p0, j) | (((lane(p4, j) >> 0) & 0x03) << 8)
		r1 := lane(p1, j) | (((lane(p4, j) >> 2) & 0x03) << 8)
		r2 := lane(p2, j) | (((lane(p4, j) >> 4) & 0x03) << 8)
		r3 := lane(p3, j) | (((lane(p4, j) >> 6) & 0x03) << 8)

		r4 := lane(p5, j) | (((lane(p9, j) >> 0) & 0x03) << 8)
		r5 := lane(p6, j) | (((lane(p9, j) >> 2) & 0x03) << 8)
		r6 := lane(p7, j) | (((lane(p9, j) >> 4) & 0x03) << 8)
		r7 := lane(p8, j) | (((lane(p9, j) >> 6) & 0x03) << 8)

		out[0*8+j] = r0
		out[1*8+j] = r1
		out[2*8+j] = r2
		out[3*8+j] = r3
		out[4*8+j] = r4
		out[5*8+j] = r5
		out[6*8+j] = r6
		out[7*8+j] = r7
	}
	return out
}
