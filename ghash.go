// ghash.go: GF(2^128) polynomial authentication hash (GHASH).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package kryptos

import (
	"encoding/binary"
)

// fieldElement is a value in GF(2^128). The bits are stored in big endian
// order to match the GCM standard: the coefficient of x^0 is low >> 63 and
// the coefficient of x^127 is high & 1.
type fieldElement struct {
	low, high uint64
}

// gcmReductionTable folds the four bits shifted out of a field element back
// in, premultiplied by the low terms of the reduction polynomial
// x^128 + x^7 + x^2 + x + 1.
var gcmReductionTable = [16]uint16{
	0x0000, 0x1c20, 0x3840, 0x2460, 0x7080, 0x6ca0, 0x48c0, 0x54e0,
	0xe100, 0xfd20, 0xd940, 0xc560, 0x9180, 0x8da0, 0xa9c0, 0xb5e0,
}

// GaloisHash accumulates a GF(2^128) polynomial over associated data and
// ciphertext, producing the pre-tag checksum of the GCM construction.
//
// The hash subkey H is fixed for the life of the instance; it is derived by
// the GCM engine from the block cipher's encryption of an all-zero block.
// The running accumulator is owned by the caller and passed into every
// operation as a 16-byte slice, so the sequential and parallel transform
// paths can share one checksum without sharing the hasher's buffer state.
//
// ProcessSegment folds a self-contained region, zero-padding its trailing
// partial block; it is used for associated data and for long-nonce
// derivation. Update is the streaming variant: partial blocks are buffered
// across calls and only flushed by FinalizeBlock, so a message may arrive
// in arbitrary fragments.
type GaloisHash struct {
	// productTable holds the first sixteen multiples of H in bit-reversed
	// index order, so four accumulator bits select a table entry directly.
	productTable [16]fieldElement
	buf          [BlockSize]byte
	bufLen       int
}

// NewGaloisHash constructs a hasher keyed with the 16-byte subkey h.
func NewGaloisHash(h []byte) *GaloisHash {
	g := &GaloisHash{}
	x := fieldElement{
		binary.BigEndian.Uint64(h[:8]),
		binary.BigEndian.Uint64(h[8:BlockSize]),
	}
	g.productTable[reverseBits(1)] = x
	for i := 2; i < 16; i += 2 {
		g.productTable[reverseBits(i)] = gcmDouble(&g.productTable[reverseBits(i/2)])
		g.productTable[reverseBits(i+1)] = gcmAdd(&g.productTable[reverseBits(i)], &x)
	}
	return g
}

// ProcessSegment folds length bytes of input starting at offset into the
// 16-byte checksum accumulator. A trailing partial block is zero-padded
// before multiplication, closing the segment at a block boundary. The
// streaming buffer is not touched.
func (g *GaloisHash) ProcessSegment(input []byte, offset int, checksum []byte, length int) {
	y := loadElement(checksum)
	g.absorb(&y, input[offset:offset+length])
	storeElement(checksum, &y)
}

// Update folds length bytes of input starting at offset into the checksum
// accumulator as part of the message stream. Bytes short of a block
// boundary are buffered and folded by a later Update or by FinalizeBlock.
func (g *GaloisHash) Update(input []byte, offset int, checksum []byte, length int) {
	data := input[offset : offset+length]
	y := loadElement(checksum)

	if g.bufLen > 0 {
		n := copy(g.buf[g.bufLen:], data)
		g.bufLen += n
		data = data[n:]
		if g.bufLen < BlockSize {
			storeElement(checksum, &y)
			return
		}
		g.absorbBlocks(&y, g.buf[:])
		g.bufLen = 0
	}

	full := (len(data) >> 4) << 4
	g.absorbBlocks(&y, data[:full])
	if full < len(data) {
		g.bufLen = copy(g.buf[:], data[full:])
	}
	storeElement(checksum, &y)
}

// FinalizeBlock completes the checksum: any buffered message remainder is
// flushed zero-padded, then the bit lengths of the associated data and the
// message are folded in as the final multiplied block.
func (g *GaloisHash) FinalizeBlock(checksum []byte, adLength, msgLength int) {
	y := loadElement(checksum)

	if g.bufLen > 0 {
		var partial [BlockSize]byte
		copy(partial[:], g.buf[:g.bufLen])
		g.absorbBlocks(&y, partial[:])
		Zeroize(partial[:])
		g.bufLen = 0
	}

	y.low ^= uint64(adLength) * 8
	y.high ^= uint64(msgLength) * 8
	g.mul(&y)
	storeElement(checksum, &y)
}

// Reset discards any buffered partial block. The subkey table is kept; the
// checksum accumulator belongs to the caller and is cleared there.
func (g *GaloisHash) Reset() {
	Zeroize(g.buf[:])
	g.bufLen = 0
}

// absorb folds data into y, zero-padding the trailing partial block.
func (g *GaloisHash) absorb(y *fieldElement, data []byte) {
	full := (len(data) >> 4) << 4
	g.absorbBlocks(y, data[:full])
	if full < len(data) {
		var partial [BlockSize]byte
		copy(partial[:], data[full:])
		g.absorbBlocks(y, partial[:])
		Zeroize(partial[:])
	}
}

// absorbBlocks extends y with polynomial terms from blocks using Horner's
// rule. len(blocks) must be a multiple of BlockSize.
func (g *GaloisHash) absorbBlocks(y *fieldElement, blocks []byte) {
	for len(blocks) > 0 {
		y.low ^= binary.BigEndian.Uint64(blocks)
		y.high ^= binary.BigEndian.Uint64(blocks[8:])
		g.mul(y)
		blocks = blocks[BlockSize:]
	}
}

// mul sets y = y * H. Four accumulator bits are retired per step: z is
// multiplied by 16 via the reduction table, then the matching premultiplied
// power of H is added in. Table indices are bit-reversed to match the field's
// little-endian bit positions.
func (g *GaloisHash) mul(y *fieldElement) {
	var z fieldElement

	for i := 0; i < 2; i++ {
		word := y.high
		if i == 1 {
			word = y.low
		}

		for j := 0; j < 64; j += 4 {
			msw := z.high & 0xf
			z.high >>= 4
			z.high |= z.low << 60
			z.low >>= 4
			z.low ^= uint64(gcmReductionTable[msw]) << 48

			t := &g.productTable[word&0xf]
			z.low ^= t.low
			z.high ^= t.high
			word >>= 4
		}
	}

	*y = z
}

// gcmAdd adds two field elements. Addition in GF(2^128) is XOR.
func gcmAdd(x, y *fieldElement) fieldElement {
	return fieldElement{x.low ^ y.low, x.high ^ y.high}
}

// gcmDouble doubles a field element. With the reversed bit ordering this is
// a right shift, with a reduction when a term at x^128 is produced.
func gcmDouble(x *fieldElement) (double fieldElement) {
	msbSet := x.high&1 == 1

	double.high = x.high >> 1
	double.high |= x.low << 63
	double.low = x.low >> 1

	if msbSet {
		// Subtracting the reduction polynomial eliminates the x^128 term
		// and adds the x^7 + x^2 + x + 1 terms; in GF(2) that is XOR with
		// 0xe1 in the top byte.
		double.low ^= 0xe100000000000000
	}
	return
}

// reverseBits reverses the order of the bits of a 4-bit number.
func reverseBits(i int) int {
	i = ((i << 2) & 0xc) | ((i >> 2) & 0x3)
	i = ((i << 1) & 0xa) | ((i >> 1) & 0x5)
	return i
}

func loadElement(b []byte) fieldElement {
	return fieldElement{
		binary.BigEndian.Uint64(b[:8]),
		binary.BigEndian.Uint64(b[8:BlockSize]),
	}
}

func storeElement(b []byte, y *fieldElement) {
	binary.BigEndian.PutUint64(b[:8], y.low)
	binary.BigEndian.PutUint64(b[8:BlockSize], y.high)
}
