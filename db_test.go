// db_test.go -- test suite for dbreader/dbwriter
//
// (c) Sudhi Herle 2018
//
// Author: Sudhi Herle <sudhi@herle.net>
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package htab

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"testing"
)

var keep bool

func init() {
	flag.BoolVar(&keep, "keep", false, "Keep test DB")
}

func tempDB(t *testing.T, nm string) string {
	fn := fmt.Sprintf("%s/%s%d.db", os.TempDir(), nm, rand.Int())
	t.Cleanup(func() {
		if keep {
			t.Logf("DB in %s retained after test\n", fn)
		} else {
			os.Remove(fn)
		}
	})
	return fn
}

func TestDB(t *testing.T) {
	assert := newAsserter(t)

	for _, nb := range []int{1, 7, 64} {
		fn := tempDB(t, "htab")

		wr, err := NewDBWriter(fn, nb)
		assert(err == nil, "can't create db %s: %s", fn, err)

		kvmap := make(map[string]string)
		for i, s := range keyw {
			v := strings.Repeat(s, i%4)
			err := wr.Add([]byte(s), []byte(v))
			assert(err == nil, "can't add key %s: %s", s, err)
			kvmap[s] = v
		}
		assert(wr.Len() == len(keyw), "writer len: exp %d, saw %d", len(keyw), wr.Len())

		err = wr.Add([]byte(keyw[0]), nil)
		assert(errors.Is(err, ErrExists), "dup: exp ErrExists, saw %v", err)

		err = wr.Freeze()
		assert(err == nil, "freeze failed: %s", err)
		assert(wr.Len() == len(keyw), "frozen writer len: exp %d, saw %d", len(keyw), wr.Len())

		err = wr.Freeze()
		assert(errors.Is(err, ErrFrozen), "2nd freeze: exp ErrFrozen, saw %v", err)
		err = wr.Add([]byte("x"), nil)
		assert(errors.Is(err, ErrFrozen), "add after freeze: exp ErrFrozen, saw %v", err)

		rd, err := NewDBReader(wr.Filename(), 10)
		assert(err == nil, "read failed: %s", err)

		assert(rd.Len() == len(keyw), "reader len: exp %d, saw %d", len(keyw), rd.Len())
		assert(rd.Buckets() == nb, "reader buckets: exp %d, saw %d", nb, rd.Buckets())

		// twice: from disk and from the cache
		for i := 0; i < 2; i++ {
			for k, v := range kvmap {
				s, err := rd.Find([]byte(k))
				assert(err == nil, "can't find key %s: %s", k, err)
				assert(string(s) == v, "key %s: value mismatch; exp '%s', saw '%s'", k, v, string(s))
			}
		}

		// now look for keys not in the DB
		for i := 0; i < 10; i++ {
			k := fmt.Sprintf("missing-%d", i)
			v, err := rd.Find([]byte(k))
			assert(errors.Is(err, ErrNoKey), "whoa: found key %s => %s", k, string(v))
			_, ok := rd.Lookup([]byte(k))
			assert(!ok, "lookup found %s", k)
		}

		seen := make(map[string]bool)
		err = rd.IterFunc(func(k, v []byte) error {
			assert(!seen[string(k)], "key %s seen twice", k)
			seen[string(k)] = true
			assert(kvmap[string(k)] == string(v), "iter %s: exp '%s', saw '%s'", k, kvmap[string(k)], v)
			return nil
		})
		assert(err == nil, "iter: %s", err)
		assert(len(seen) == len(kvmap), "iter: exp %d keys, saw %d", len(kvmap), len(seen))

		var b strings.Builder
		rd.DumpMeta(&b)
		assert(strings.HasPrefix(b.String(), "HTAB: <KEYS+VALS>"), "meta: %s", b.String())

		rd.Close()
	}
}

func TestDBKeysOnly(t *testing.T) {
	assert := newAsserter(t)

	fn := tempDB(t, "keys")
	wr, err := NewDBWriter(fn, 5)
	assert(err == nil, "can't create db %s: %s", fn, err)

	for _, s := range keyw {
		err := wr.Add([]byte(s), nil)
		assert(err == nil, "can't add key %s: %s", s, err)
	}

	err = wr.Freeze()
	assert(err == nil, "freeze failed: %s", err)

	rd, err := NewDBReader(fn, 10)
	assert(err == nil, "read failed: %s", err)
	defer rd.Close()

	assert(strings.HasPrefix(rd.Desc(), "HTAB: <KEYS>"), "desc: %s", rd.Desc())

	for _, s := range keyw {
		v, err := rd.Find([]byte(s))
		assert(err == nil, "can't find key %s: %s", s, err)
		assert(v == nil, "key %s: value mismatch; exp nil, saw '%s'", s, string(v))
	}

	_, ok := rd.Lookup([]byte("not a key"))
	assert(!ok, "found a missing key")
}

func TestDBEmpty(t *testing.T) {
	assert := newAsserter(t)

	fn := tempDB(t, "empty")
	wr, err := NewDBWriter(fn, 3)
	assert(err == nil, "can't create db %s: %s", fn, err)
	assert(wr.Freeze() == nil, "freeze failed")

	rd, err := NewDBReader(fn, 0)
	assert(err == nil, "read failed: %s", err)
	defer rd.Close()

	assert(rd.Len() == 0, "exp 0 keys, saw %d", rd.Len())
	_, err = rd.Find([]byte("a"))
	assert(errors.Is(err, ErrNoKey), "exp ErrNoKey, saw %v", err)

	err = rd.IterFunc(func(k, v []byte) error {
		return fmt.Errorf("unexpected record %s", k)
	})
	assert(err == nil, "iter: %s", err)
}

func TestDBAbort(t *testing.T) {
	assert := newAsserter(t)

	fn := tempDB(t, "abort")
	wr, err := NewDBWriter(fn, 3)
	assert(err == nil, "can't create db %s: %s", fn, err)

	tmp := wr.fntmp
	wr.Add([]byte("a"), []byte("b"))
	assert(wr.Abort() == nil, "abort failed")

	_, err = os.Stat(tmp)
	assert(os.IsNotExist(err), "tmp file %s still exists", tmp)
	_, err = os.Stat(fn)
	assert(os.IsNotExist(err), "db %s exists", fn)

	err = wr.Abort()
	assert(errors.Is(err, ErrFrozen), "2nd abort: exp ErrFrozen, saw %v", err)

	_, err = NewDBWriter(fn, 0)
	assert(errors.Is(err, ErrInvalidSize), "exp ErrInvalidSize, saw %v", err)
}

func TestWriteTable(t *testing.T) {
	assert := newAsserter(t)

	tb := newCounter(t, 11)
	for i, s := range keyw {
		for j := 0; j <= i; j++ {
			tb.Insert(s)
		}
	}

	enc := func(k string, n int) ([]byte, []byte, error) {
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(n))
		return []byte(k), v[:], nil
	}

	fn := tempDB(t, "table")
	err := WriteTable(fn, tb, enc)
	assert(err == nil, "write table: %s", err)

	rd, err := NewDBReader(fn, 4)
	assert(err == nil, "read failed: %s", err)
	defer rd.Close()

	assert(rd.Buckets() == tb.Size(), "buckets: exp %d, saw %d", tb.Size(), rd.Buckets())
	assert(rd.Len() == tb.Len(), "keys: exp %d, saw %d", tb.Len(), rd.Len())

	for i, s := range keyw {
		v, err := rd.Find([]byte(s))
		assert(err == nil, "can't find %s: %s", s, err)
		n := binary.BigEndian.Uint64(v)
		assert(n == uint64(i+1), "%s: exp %d, saw %d", s, i+1, n)
	}

	// encoding failures abort the snapshot
	bad := fmt.Errorf("bad key")
	fn2 := tempDB(t, "bad")
	err = WriteTable(fn2, tb, func(string, int) ([]byte, []byte, error) {
		return nil, nil, bad
	})
	assert(errors.Is(err, bad), "exp bad key, saw %v", err)
	_, err = os.Stat(fn2)
	assert(os.IsNotExist(err), "db %s exists after failure", fn2)
}

func TestDBCorrupt(t *testing.T) {
	assert := newAsserter(t)

	fn := tempDB(t, "corrupt")
	wr, err := NewDBWriter(fn, 4)
	assert(err == nil, "can't create db %s: %s", fn, err)

	for _, s := range keyw {
		wr.Add([]byte(s), []byte(strings.ToUpper(s)))
	}
	assert(wr.Freeze() == nil, "freeze failed")

	data, err := os.ReadFile(fn)
	assert(err == nil, "read %s: %s", fn, err)

	// flip a byte in the value of the first record
	k0 := len(keyw[0])
	rec := append([]byte(nil), data...)
	rec[_HeaderSize+_RecHeaderSize+k0] ^= 0xff
	assert(os.WriteFile(fn, rec, 0600) == nil, "can't write %s", fn)

	rd, err := NewDBReader(fn, 4)
	assert(err == nil, "read failed: %s", err)

	_, err = rd.Find([]byte(keyw[0]))
	assert(err != nil && !errors.Is(err, ErrNoKey), "corrupt record not detected: %v", err)

	err = rd.IterFunc(func(k, v []byte) error { return nil })
	assert(err != nil, "iter over corrupt record succeeded")
	rd.Close()

	// flip a byte in the bucket index
	idx := append([]byte(nil), data...)
	idx[len(idx)-40] ^= 0xff
	assert(os.WriteFile(fn, idx, 0600) == nil, "can't write %s", fn)

	_, err = NewDBReader(fn, 4)
	assert(err != nil, "corrupt index not detected")

	// bad magic
	hdr := append([]byte(nil), data...)
	hdr[0] = 'X'
	assert(os.WriteFile(fn, hdr, 0600) == nil, "can't write %s", fn)

	_, err = NewDBReader(fn, 4)
	assert(err != nil, "bad magic not detected")

	assert(os.WriteFile(fn, data[:32], 0600) == nil, "can't write %s", fn)
	_, err = NewDBReader(fn, 4)
	assert(err != nil, "truncated file not detected")
}
