// dbreader.go -- read a hash table snapshot
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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"crypto/sha512"
	"crypto/subtle"

	"github.com/dchest/siphash"
	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/opencoff/go-mmap"
)

// DBReader represents the query interface for a snapshot previously
// written by DBWriter.
type DBReader struct {
	cache *arc.ARCCache[string, []byte]

	flags uint32

	// bucket occupancy
	bv *bitVector

	// memory mapped bucket ranges and record offsets
	ranges  []byte
	offsets []byte

	nbuckets uint64
	nkeys    uint64
	salt     []byte
	k0, k1   uint64
	offtbl   uint64

	// original mmap slice
	mm *mmap.Mapping
	fd *os.File
	fn string
}

// NewDBReader reads a previously written snapshot in file 'fn' and
// prepares it for querying. Records are opportunistically cached after
// reading from disk. We retain upto 'cache' number of records in memory
// (default 128).
func NewDBReader(fn string, cache int) (rd *DBReader, err error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, err
	}

	var mapping *mmap.Mapping

	defer func(e *error) {
		if *e != nil {
			if mapping != nil {
				mapping.Unmap()
			}
			fd.Close()
		}
	}(&err)

	// Number of records to cache
	if cache <= 0 {
		cache = 128
	}

	rd = &DBReader{
		salt: make([]byte, 16),
		fd:   fd,
		fn:   fn,
	}

	var st os.FileInfo

	st, err = fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("%s: can't stat: %w", fn, err)
	}

	if st.Size() < (_HeaderSize + 32) {
		return nil, fmt.Errorf("%s: file too small or corrupted", fn)
	}

	var hdrb [_HeaderSize]byte

	_, err = io.ReadFull(fd, hdrb[:])
	if err != nil {
		return nil, fmt.Errorf("%s: can't read header: %w", fn, err)
	}

	offtbl, err := rd.decodeHeader(hdrb[:], st.Size())
	if err != nil {
		return nil, err
	}

	err = rd.verifyChecksum(hdrb[:], offtbl, st.Size())
	if err != nil {
		return nil, err
	}

	rd.cache, err = arc.NewARC[string, []byte](cache)
	if err != nil {
		return nil, err
	}

	// Now, we are certain that the header and the bucket index are
	// valid and uncorrupted.

	// mmap the bucket index
	mmapsz := st.Size() - int64(offtbl) - 32
	mm := mmap.New(fd)

	mapping, err = mm.Map(mmapsz, int64(offtbl), mmap.PROT_READ, mmap.F_READAHEAD)
	if err != nil {
		return nil, fmt.Errorf("%s: can't mmap %d bytes at off %d: %w",
			fn, mmapsz, offtbl, err)
	}
	rd.mm = mapping

	bs := mapping.Bytes()
	bv, n, err := unmarshalBitVector(bs)
	if err != nil {
		return nil, fmt.Errorf("%s: can't unmarshal bucket bitmap: %w", fn, err)
	}
	if bv.Size() < rd.nbuckets {
		return nil, fmt.Errorf("%s: bucket bitmap too small; exp %d, saw %d", fn, rd.nbuckets, bv.Size())
	}

	// number of occupied buckets
	occ := bv.ComputeRank()

	bs = bs[n:]
	rsz := occ * 16
	osz := rd.nkeys * 8
	if uint64(len(bs)) < rsz+osz {
		return nil, fmt.Errorf("%s: corrupt bucket index", fn)
	}

	rd.bv = bv
	rd.ranges = bs[:rsz]
	rd.offsets = bs[rsz : rsz+osz]
	return rd, nil
}

// Len returns the number of keys in the snapshot
func (rd *DBReader) Len() int {
	return int(rd.nkeys)
}

// Buckets returns the number of buckets of the snapshot
func (rd *DBReader) Buckets() int {
	return int(rd.nbuckets)
}

// Close closes the db
func (rd *DBReader) Close() {
	rd.mm.Unmap()
	rd.fd.Close()
	rd.cache.Purge()
	rd.salt = nil
	rd.bv = nil
	rd.ranges = nil
	rd.offsets = nil
	rd.fd = nil
	rd.fn = ""
}

// Lookup looks up 'key' in the table and returns the corresponding value.
// If the key is not found, value is nil and returns false.
func (rd *DBReader) Lookup(key []byte) ([]byte, bool) {
	v, err := rd.Find(key)
	if err != nil {
		return nil, false
	}

	return v, true
}

// Dump the metadata to io.Writer 'w'
func (rd *DBReader) DumpMeta(w io.Writer) {
	fmt.Fprintf(w, "%s", rd.Desc())

	le := binary.LittleEndian
	for b := uint64(0); b < rd.nbuckets; b++ {
		if !rd.bv.IsSet(b) {
			continue
		}

		j := rd.bv.Rank(b) * 16
		first := le.Uint64(rd.ranges[j:])
		count := le.Uint64(rd.ranges[j+8:])
		fmt.Fprintf(w, "  %3d: %d keys at %#x\n", b, count, le.Uint64(rd.offsets[first*8:]))
	}
}

// Desc provides a human description of the snapshot
func (rd *DBReader) Desc() string {
	var w strings.Builder

	kind := "KEYS+VALS"
	if (rd.flags & _DB_KeysOnly) > 0 {
		kind = "KEYS"
	}

	idx := humansize(uint64(len(rd.ranges)+len(rd.offsets)) + rd.bv.Words()*8)
	fmt.Fprintf(&w, "HTAB: <%s> %d keys in %d buckets, hash-salt %#x, index %s at %#x\n",
		kind, rd.nkeys, rd.nbuckets, rd.salt, idx, rd.offtbl)
	return w.String()
}

// Find looks up 'key' in the table and returns the corresponding value.
// It returns an error if the key is not found or the disk i/o failed or
// the record checksum failed.
func (rd *DBReader) Find(key []byte) ([]byte, error) {
	if v, ok := rd.cache.Get(string(key)); ok {
		return v, nil
	}

	b := siphash.Hash(rd.k0, rd.k1, key) % rd.nbuckets
	if !rd.bv.IsSet(b) {
		return nil, ErrNoKey
	}

	le := binary.LittleEndian
	j := rd.bv.Rank(b) * 16
	first := le.Uint64(rd.ranges[j:])
	count := le.Uint64(rd.ranges[j+8:])
	if first+count > rd.nkeys {
		return nil, fmt.Errorf("%s: corrupt bucket %d: %d+%d > %d keys", rd.fn, b, first, count, rd.nkeys)
	}

	for i := first; i < first+count; i++ {
		off := le.Uint64(rd.offsets[i*8:])
		k, v, err := rd.decodeRecord(off)
		if err != nil {
			return nil, err
		}

		if bytes.Equal(k, key) {
			rd.cache.Add(string(key), v)
			return v, nil
		}
	}

	return nil, ErrNoKey
}

// IterFunc iterates through every record of the snapshot in bucket order
// and calls 'fp' on each. If the called function returns non-nil,
// it stops the iteration and the error is propogated to the caller.
func (rd *DBReader) IterFunc(fp func(k, v []byte) error) error {
	le := binary.LittleEndian
	for i := uint64(0); i < rd.nkeys; i++ {
		off := le.Uint64(rd.offsets[i*8:])
		k, v, err := rd.decodeRecord(off)
		if err != nil {
			return fmt.Errorf("iter: record %d: read-record: %w", i, err)
		}
		if err := fp(k, v); err != nil {
			return err
		}
	}
	return nil
}

// read the full record at offset 'off', validate its checksum and return
// the key and value.
func (rd *DBReader) decodeRecord(off uint64) ([]byte, []byte, error) {
	var hdr [_RecHeaderSize]byte

	if off < _HeaderSize || off+_RecHeaderSize > rd.offtbl {
		return nil, nil, fmt.Errorf("%s: record offset %#x out of bounds", rd.fn, off)
	}

	if _, err := rd.fd.ReadAt(hdr[:], int64(off)); err != nil {
		return nil, nil, err
	}

	be := binary.BigEndian
	csum := be.Uint64(hdr[:8])
	klen := uint64(be.Uint32(hdr[8:12]))
	vlen := uint64(be.Uint32(hdr[12:16]))

	if off+_RecHeaderSize+klen+vlen > rd.offtbl {
		return nil, nil, fmt.Errorf("%s: corrupted record at off %d (len %d+%d)", rd.fn, off, klen, vlen)
	}

	data := make([]byte, klen+vlen)
	if _, err := rd.fd.ReadAt(data, int64(off+_RecHeaderSize)); err != nil {
		return nil, nil, err
	}

	key := data[:klen]
	val := data[klen:]

	exp := recordSum(rd.salt, off, hdr[8:], key, val)
	if csum != exp {
		return nil, nil, fmt.Errorf("%s: corrupted record at off %d (exp %#x, saw %#x)", rd.fn, off, exp, csum)
	}

	if vlen == 0 {
		val = nil
	}
	return key, val, nil
}

// Verify checksum of all metadata: the file header and the bucket index.
// We know that offtbl is within the size bounds of the file - see decodeHeader() below.
// sz is the actual file size (includes the header we already read)
func (rd *DBReader) verifyChecksum(hdrb []byte, offtbl uint64, sz int64) error {
	h := sha512.New512_256()
	h.Write(hdrb[:])

	// remsz is the size of the remaining metadata (which begins at offset 'offtbl')
	remsz := sz - int64(offtbl) - 32

	nw, err := io.Copy(h, io.NewSectionReader(rd.fd, int64(offtbl), remsz))
	if err != nil {
		return fmt.Errorf("%s: metadata i/o error: %w", rd.fn, err)
	}
	if nw != remsz {
		return fmt.Errorf("%s: partial read while verifying checksum, exp %d, saw %d", rd.fn, remsz, nw)
	}

	var expsum [32]byte

	// Read the trailer -- which is the expected checksum
	_, err = rd.fd.ReadAt(expsum[:], sz-32)
	if err != nil {
		return fmt.Errorf("%s: checksum i/o error: %w", rd.fn, err)
	}

	csum := h.Sum(nil)
	if subtle.ConstantTimeCompare(csum[:], expsum[:]) != 1 {
		return fmt.Errorf("%s: checksum failure; exp %#x, saw %#x", rd.fn, expsum[:], csum[:])
	}

	return nil
}

// entry condition: b is _HeaderSize bytes long.
func (rd *DBReader) decodeHeader(b []byte, sz int64) (uint64, error) {
	magic := string(b[:4])
	if magic != _Magic {
		return 0, fmt.Errorf("%s: bad file magic <%s>", rd.fn, magic)
	}

	be := binary.BigEndian
	i := 4

	rd.flags = be.Uint32(b[i : i+4])
	i += 4

	copy(rd.salt, b[i:i+16])
	i += 16
	rd.nbuckets = be.Uint64(b[i : i+8])
	i += 8
	rd.nkeys = be.Uint64(b[i : i+8])
	i += 8
	rd.offtbl = be.Uint64(b[i : i+8])

	if rd.offtbl < _HeaderSize || rd.offtbl >= uint64(sz-32) {
		return 0, fmt.Errorf("%s: corrupt header0", rd.fn)
	}
	if rd.nbuckets == 0 {
		return 0, fmt.Errorf("%s: corrupt header1", rd.fn)
	}

	rd.k0, rd.k1 = sipKeys(rd.salt)
	return rd.offtbl, nil
}
