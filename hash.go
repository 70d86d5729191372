// hash.go - hash and equality functions for common key types
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package htab

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	"github.com/opencoff/go-fasthash"
)

// StringHash is the default hash for string keys. The key is treated as a
// NUL terminated string: bytes after the first NUL don't contribute to
// the hash. The result fits in 32 bits.
func StringHash(s string) uint64 {
	var h uint32

	for i := 0; i < len(s) && s[i] != 0; i++ {
		h = h*31 + uint32(s[i])
	}
	return uint64(h)
}

// BytesHash is the default hash for []byte keys; see StringHash.
func BytesHash(b []byte) uint64 {
	var h uint32

	for _, c := range b {
		if c == 0 {
			break
		}
		h = h*31 + uint32(c)
	}
	return uint64(h)
}

// StringEqual is the default equality for string keys. Both keys are
// compared up to their first NUL; they are equal only if every byte
// before the terminator matches.
func StringEqual(a, b string) bool {
	return cstr(a) == cstr(b)
}

// BytesEqual is the default equality for []byte keys; see StringEqual.
func BytesEqual(a, b []byte) bool {
	return string(cbytes(a)) == string(cbytes(b))
}

// FastHash returns a seeded fasthash function for []byte keys
func FastHash(seed uint64) HashFunc[[]byte] {
	return func(b []byte) uint64 {
		return fasthash.Hash64(seed, b)
	}
}

// FastStringHash returns a seeded fasthash function for string keys
func FastStringHash(seed uint64) HashFunc[string] {
	return func(s string) uint64 {
		return fasthash.Hash64(seed, []byte(s))
	}
}

// SipHash returns a siphash-2-4 function keyed by (k0, k1). Use this
// when the keys come from an untrusted source.
func SipHash(k0, k1 uint64) HashFunc[[]byte] {
	return func(b []byte) uint64 {
		return siphash.Hash(k0, k1, b)
	}
}

// SipStringHash is SipHash for string keys
func SipStringHash(k0, k1 uint64) HashFunc[string] {
	return func(s string) uint64 {
		return siphash.Hash(k0, k1, []byte(s))
	}
}

// XXHash is a HashFunc for []byte keys using xxhash64
func XXHash(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// XXStringHash is a HashFunc for string keys using xxhash64
func XXStringHash(s string) uint64 {
	return xxhash.Sum64String(s)
}

func cstr(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i]
		}
	}
	return s
}

func cbytes(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
