// bitvector_test.go -- test suite for bitvector
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
	"bytes"
	"math/rand"
	"testing"
)

func TestBV(t *testing.T) {
	assert := newAsserter(t)

	bv := newBitVector(100)
	assert(bv.Size() == 128, "size mismatch; exp 128, saw %d", bv.Size())

	var i uint64
	for i = 0; i < bv.Size(); i++ {
		if 1 == (i & 1) {
			bv.Set(i)
		}
	}

	for i = 0; i < bv.Size(); i++ {
		if 1 == (i & 1) {
			assert(bv.IsSet(i), "%d not set", i)
		} else {
			assert(!bv.IsSet(i), "%d is set", i)
		}
	}
}

func TestBVRank(t *testing.T) {
	assert := newAsserter(t)

	bv := newBitVector(1000)
	n := bv.Size()
	set := make([]bool, n)
	for i := 0; i < 300; i++ {
		j := rand.Uint64() % n
		bv.Set(j)
		set[j] = true
	}

	// expected ranks, before and after memoizing
	exp := make([]uint64, n)
	var r uint64
	for i := uint64(0); i < n; i++ {
		exp[i] = r
		if set[i] {
			r++
		}
	}

	for i := uint64(0); i < n; i++ {
		assert(bv.Rank(i) == exp[i], "slow rank %d: exp %d, saw %d", i, exp[i], bv.Rank(i))
	}

	pop := bv.ComputeRank()
	assert(pop == r, "popcount: exp %d, saw %d", r, pop)

	for i := uint64(0); i < n; i++ {
		assert(bv.Rank(i) == exp[i], "rank %d: exp %d, saw %d", i, exp[i], bv.Rank(i))
	}
}

func TestBVMarshal(t *testing.T) {
	assert := newAsserter(t)

	var b bytes.Buffer

	bv := newBitVector(100)
	assert(bv.Size() == 128, "size mismatch; exp 128, saw %d", bv.Size())

	var i uint64
	for i = 0; i < bv.Size(); i++ {
		if 1 == (i & 1) {
			bv.Set(i)
		}
	}

	bv.MarshalBinary(&b)
	expsz := 8 * (1 + bv.Words())
	assert(uint64(b.Len()) == expsz, "marshal size incorrect; exp %d, saw %d", expsz, b.Len())

	bn, n, err := unmarshalBitVector(b.Bytes())
	assert(err == nil, "unmarshal failed: %s", err)
	assert(bn.Size() == bv.Size(), "unmarshal size error; exp %d, saw %d", bv.Size(), bn.Size())
	assert(n == uint64(b.Len()), "unmarshal: not enough bytes consumed; exp %d, saw %d", b.Len(), n)

	for i = 0; i < bv.Size(); i++ {
		if bv.IsSet(i) {
			assert(bn.IsSet(i), "unmarshal %d is unset", i)
		} else {
			assert(!bn.IsSet(i), "unmarshal %d is set", i)
		}
		assert(bn.Rank(i) == (i / 2), "unmarshal rank %d: exp %d, saw %d", i, i/2, bn.Rank(i))
	}

	_, _, err = unmarshalBitVector(b.Bytes()[:12])
	assert(err != nil, "unmarshal of truncated buffer succeeded")
}
