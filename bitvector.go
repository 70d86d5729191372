// bitvector.go -- bucket occupancy bitmap with rank queries
//
// (c) Sudhi Herle 2018
//
// License GPLv2
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package htab

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
)

// bitVector records which buckets of a snapshot are occupied. Rank()
// maps an occupied bucket to its slot in the dense bucket index.
type bitVector struct {
	v []uint64

	// ranks[i] is the number of bits set in words [0, i)
	ranks []uint64
}

// newBitVector creates a bitvector to hold atleast 'sz' bits. The
// resulting size is rounded-up to the next multiple of 64.
func newBitVector(sz uint64) *bitVector {
	sz += 63
	sz &= ^(uint64(63))
	words := sz / 64
	bv := &bitVector{
		v: make([]uint64, words),
	}

	return bv
}

// Size returns the number of bits in this bitvector
func (b *bitVector) Size() uint64 {
	return uint64(len(b.v)) * 64
}

// Words returns the number of words in the array
func (b *bitVector) Words() uint64 {
	return uint64(len(b.v))
}

// Set sets the bit 'i' in the bitvector
func (b *bitVector) Set(i uint64) {
	b.v[i/64] |= uint64(1) << (i % 64)
}

// IsSet() returns true if the bit 'i' is set, false otherwise
func (b *bitVector) IsSet(i uint64) bool {
	return 1 == (1 & (b.v[i/64] >> (i % 64)))
}

// ComputeRank memoizes rank calculation for future rank queries
// One must not modify the bitvector after calling this function.
// Returns the population count of the bitvector.
func (b *bitVector) ComputeRank() uint64 {
	var p uint64

	b.ranks = make([]uint64, len(b.v))
	for i, w := range b.v {
		b.ranks[i] = p
		p += popcount(w)
	}
	return p
}

// Rank returns the number of bits set before bit 'i'.
func (b *bitVector) Rank(i uint64) uint64 {
	x := i / 64
	y := i % 64

	var r uint64
	if b.ranks != nil {
		r = b.ranks[x]
	} else {
		for k := uint64(0); k < x; k++ {
			r += popcount(b.v[k])
		}
	}

	if y == 0 {
		return r
	}
	return r + popcount(b.v[x]<<(64-y))
}

// MarshalBinary writes the bitvector in a portable format to writer 'w'.
func (b *bitVector) MarshalBinary(w io.Writer) (int, error) {
	var x [8]byte

	binary.LittleEndian.PutUint64(x[:], b.Words())

	n, err := writeAll(w, x[:])
	if err != nil {
		return 0, err
	}
	m, err := writeAll(w, u64sToBytes(b.v))
	return n + m, err
}

// unmarshalBitVector reads a previously encoded bitvector and reconstructs
// the in-memory version. Returns the number of bytes consumed.
func unmarshalBitVector(buf []byte) (*bitVector, uint64, error) {
	if len(buf) < 8 {
		return nil, 0, ErrTooSmall
	}

	bvlen := binary.LittleEndian.Uint64(buf[:8])
	if bvlen == 0 || bvlen > (1<<32) {
		return nil, 0, fmt.Errorf("bitvect length %d is invalid", bvlen)
	}
	if uint64(len(buf)-8) < bvlen*8 {
		return nil, 0, ErrTooSmall
	}

	b := &bitVector{
		v: bytesToU64s(buf[8:], bvlen),
	}
	b.ComputeRank()
	return b, 8 + (bvlen * 8), nil
}

func popcount(x uint64) uint64 {
	return uint64(bits.OnesCount64(x))
}
