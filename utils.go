// utils.go -- utility functions
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
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// set to true for verbose debug
const debug bool = false

func randbytes(n int) []byte {
	b := make([]byte, n)

	_, err := io.ReadFull(rand.Reader, b)
	if err != nil {
		panic("can't read crypto/rand")
	}
	return b
}

func rand32() uint32 {
	var b [4]byte

	_, err := io.ReadFull(rand.Reader, b[:])
	if err != nil {
		panic("can't read crypto/rand")
	}

	return binary.BigEndian.Uint32(b[:])
}

func rand64() uint64 {
	var b [8]byte

	_, err := io.ReadFull(rand.Reader, b[:])
	if err != nil {
		panic("can't read crypto/rand")
	}

	return binary.BigEndian.Uint64(b[:])
}

// encode a slice of uint64 as little-endian bytes
func u64sToBytes(v []uint64) []byte {
	b := make([]byte, len(v)*8)
	for i, x := range v {
		binary.LittleEndian.PutUint64(b[i*8:], x)
	}
	return b
}

// decode 'n' little-endian uint64s from 'b'
func bytesToU64s(b []byte, n uint64) []uint64 {
	v := make([]uint64, n)
	for i := range v {
		v[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return v
}

// return a human readable size
func humansize(n uint64) string {
	const (
		_kB = 1 << 10
		_MB = 1 << 20
		_GB = 1 << 30
	)

	switch {
	case n >= _GB:
		return fmt.Sprintf("%4.2f GB", float64(n)/_GB)
	case n >= _MB:
		return fmt.Sprintf("%4.2f MB", float64(n)/_MB)
	case n >= _kB:
		return fmt.Sprintf("%4.2f kB", float64(n)/_kB)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func printf(f string, v ...interface{}) {
	if !debug {
		return
	}

	s := fmt.Sprintf(f, v...)
	if n := len(s); s[n-1] != '\n' {
		s += "\n"
	}

	os.Stdout.WriteString(s)
	os.Stdout.Sync()
}
