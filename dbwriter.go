// dbwriter.go -- write the contents of a hash table to a snapshot file
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
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/dchest/siphash"
)

// The on-disk snapshot has the following general structure:
//   - 64 byte file header: big-endian encoding of all multibyte ints
//      * magic    [4]byte
//      * flags    uint32 (indicates if DB is keys-only or keys+vals)
//      * salt     [16]byte siphash key for bucketing and record integrity
//      * nbuckets uint64  Number of buckets
//      * nkeys    uint64  Number of keys in the DB
//      * offtbl   uint64  File offset of the bucket index (page-aligned)
//
//   - Contiguous series of records in insertion order; each record is:
//      * cksum    uint64  Siphash checksum of offset, lengths, key, value
//      * klen     uint32
//      * vlen     uint32
//      * key      []byte
//      * val      []byte
//
//   - Possibly a gap until the next PageSize boundary
//   - The bucket index; little-endian encoded since it is mmap'd:
//      * occupancy bitvector over nbuckets
//      * for each occupied bucket in ascending order: first, count uint64
//        (a range in the record offset table below)
//      * record offset table ([]uint64); a bucket's records are
//        consecutive and in insertion order.
//   - 32 bytes of strong checksum (SHA512_256); this checksum is done over
//     the file header and the bucket index.
//
// A key lives in bucket siphash(salt, key) mod nbuckets.

const (
	// Flags
	_DB_KeysOnly = 1 << iota

	_Magic = "HTB1"

	_HeaderSize = 64

	// per-record header: cksum, klen, vlen
	_RecHeaderSize = 16
)

// writer state
type wstate int

const (
	_Aborted = -1
	_Open    = 0
	_Frozen  = 1
)

// DBWriter builds a snapshot file of key/value pairs. Keys and values are
// arbitrary byte sequences. Each record carries a siphash-2-4 checksum;
// the header and bucket index are protected by SHA512-256.
//
// The writer indexes keys in a Table whose buckets are exactly the
// buckets of the snapshot.
type DBWriter struct {
	fd *os.File

	// to detect duplicates and group keys by bucket
	keys *Table[[]byte, *record]
	hash HashFunc[[]byte]

	// siphash key: just binary encoded salt
	salt []byte

	nbuckets uint64

	// running count of current offset within fd where we are writing
	// records
	off uint64

	valSize uint64

	// key count once frozen; w.keys is gone by then
	nkeys int

	fntmp string // tmp file name
	fn    string // final file holding the snapshot
	state wstate
}

// things associated with each key/value pair
type record struct {
	off uint64
}

// NewDBWriter prepares file 'fn' to hold a snapshot with 'nbuckets'
// buckets. The file is written to a temporary name and only renamed to
// 'fn' by Freeze().
func NewDBWriter(fn string, nbuckets int) (*DBWriter, error) {
	if nbuckets <= 0 {
		return nil, fmt.Errorf("dbwriter: %w: %d", ErrInvalidSize, nbuckets)
	}

	salt := randbytes(16)
	k0, k1 := sipKeys(salt)

	tmp := fmt.Sprintf("%s.tmp.%d", fn, rand32())
	fd, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}

	w := &DBWriter{
		fd:       fd,
		hash:     SipHash(k0, k1),
		salt:     salt,
		nbuckets: uint64(nbuckets),
		off:      _HeaderSize, // starting offset past the header
		fn:       fn,
		fntmp:    tmp,
	}

	w.keys, err = New[[]byte, *record](nbuckets, w.hash, w.newRecord, bytes.Equal, nil)
	if err != nil {
		fd.Close()
		os.Remove(tmp)
		return nil, err
	}

	// Leave some space for a header; we will fill this in when we
	// are done Freezing.
	var z [_HeaderSize]byte
	if _, err := writeAll(fd, z[:]); err != nil {
		w.abort()
		return nil, err
	}

	return w, nil
}

// WriteTable writes every entry of 't' to a new snapshot 'fn' with as
// many buckets as 't'. 'enc' encodes each key and payload; a nil value
// is stored as an empty one.
func WriteTable[K, S any](fn string, t *Table[K, S], enc func(key K, store S) ([]byte, []byte, error)) (err error) {
	w, err := NewDBWriter(fn, t.Size())
	if err != nil {
		return err
	}

	defer func(e *error) {
		if *e != nil && w.state == _Open {
			w.abort()
		}
	}(&err)

	err = t.IterFunc(func(k K, s S) error {
		key, val, err := enc(k, s)
		if err != nil {
			return err
		}
		return w.Add(key, val)
	})
	if err != nil {
		return err
	}

	return w.Freeze()
}

// Len returns the total number of distinct keys in the DB
func (w *DBWriter) Len() int {
	if w.state != _Open {
		return w.nkeys
	}
	return w.keys.Len()
}

// Return the filename of the underlying db
func (w *DBWriter) Filename() string {
	return w.fn
}

// Add adds a single key,value pair. Adding a key that is already in the
// DB returns ErrExists.
func (w *DBWriter) Add(key []byte, val []byte) error {
	if w.state != _Open {
		return ErrFrozen
	}

	if uint64(len(key)) > uint64(1<<32)-1 || uint64(len(val)) > uint64(1<<32)-1 {
		return ErrValueTooLarge
	}

	if _, ok := w.keys.Store(key); ok {
		return ErrExists
	}

	// the table copies the key and hands out a record at the current offset
	r, err := w.keys.Insert(key)
	if err != nil {
		return err
	}

	if err := w.writeRecord(key, val, r.off); err != nil {
		return err
	}

	w.valSize += uint64(len(val))
	return nil
}

// Abort a construction
func (w *DBWriter) Abort() error {
	if w.state != _Open {
		return ErrFrozen
	}

	return w.abort()
}

func (w *DBWriter) abort() error {
	w.keys.Destroy()
	w.state = _Aborted

	if err := os.Remove(w.fd.Name()); err != nil {
		return err
	}

	if err := w.fd.Close(); err != nil {
		return err
	}
	return nil
}

// Freeze writes the bucket index, the header and the checksum; the
// snapshot is then renamed to its final name.
func (w *DBWriter) Freeze() (err error) {
	defer func(e *error) {
		// undo the tmpfile
		if *e != nil && w.state == _Open {
			w.abort()
		}
	}(&err)

	if w.state != _Open {
		return ErrFrozen
	}

	// calculate strong checksum for all data from this point on.
	h := sha512.New512_256()

	tee := io.MultiWriter(w.fd, h)

	// We align the bucket index to pagesize - so we can mmap it when we read it back.
	pgsz := uint64(os.Getpagesize())
	pgsz_m1 := pgsz - 1
	offtbl := w.off + pgsz_m1
	offtbl &= ^pgsz_m1

	if offtbl > w.off {
		zeroes := make([]byte, offtbl-w.off)
		if _, err = writeAll(w.fd, zeroes); err != nil {
			return err
		}
		w.off = offtbl
	}

	var ehdr [_HeaderSize]byte

	be := binary.BigEndian
	copy(ehdr[:4], _Magic)

	i := 4
	if w.valSize == 0 {
		be.PutUint32(ehdr[i:i+4], uint32(_DB_KeysOnly))
	}
	i += 4

	i += copy(ehdr[i:], w.salt)
	be.PutUint64(ehdr[i:i+8], w.nbuckets)
	i += 8
	be.PutUint64(ehdr[i:i+8], uint64(w.keys.Len()))
	i += 8
	be.PutUint64(ehdr[i:i+8], offtbl)

	// add header to checksum
	h.Write(ehdr[:])

	if err = w.marshalIndex(tee); err != nil {
		return err
	}

	// Trailer is the checksum of everything
	cksum := h.Sum(nil)
	if _, err = writeAll(w.fd, cksum[:]); err != nil {
		return err
	}

	// Finally, write the header at start of file
	if _, err = w.fd.Seek(0, 0); err != nil {
		return err
	}
	if _, err = writeAll(w.fd, ehdr[:]); err != nil {
		return err
	}

	if err = w.fd.Sync(); err != nil {
		return err
	}

	if err = w.fd.Close(); err != nil {
		return err
	}

	if err = os.Rename(w.fntmp, w.fn); err != nil {
		return err
	}

	w.nkeys = w.keys.Len()
	w.keys.Destroy()
	w.state = _Frozen
	return nil
}

// write the occupancy bitvector, the bucket ranges and the record
// offsets. The key table iterates in bucket order, so each bucket's
// records come out consecutively.
func (w *DBWriter) marshalIndex(tee io.Writer) error {
	bv := newBitVector(w.nbuckets)
	ranges := make([]uint64, 0, 2*w.keys.Len())
	offsets := make([]uint64, 0, w.keys.Len())

	cur := w.nbuckets
	err := w.keys.IterFunc(func(k []byte, r *record) error {
		b := w.hash(k) % w.nbuckets
		if b != cur {
			bv.Set(b)
			ranges = append(ranges, uint64(len(offsets)), 0)
			cur = b
		}

		ranges[len(ranges)-1]++
		offsets = append(offsets, r.off)
		return nil
	})
	if err != nil {
		return err
	}

	wr := newErrWriter(tee)
	n, _ := bv.MarshalBinary(wr)
	m, _ := wr.Write(u64sToBytes(ranges))
	k, _ := wr.Write(u64sToBytes(offsets))

	w.off += uint64(n + m + k)
	return wr.Error()
}

// combine function of the key table: a new key gets a record at the
// current write offset.
func (w *DBWriter) newRecord(r *record, ok bool, _ []byte) *record {
	if ok {
		return r
	}
	return &record{off: w.off}
}

// writeRecord writes a record and checksum at the offset
func (w *DBWriter) writeRecord(key, val []byte, off uint64) error {
	var hdr [_RecHeaderSize]byte

	be := binary.BigEndian
	be.PutUint32(hdr[8:12], uint32(len(key)))
	be.PutUint32(hdr[12:16], uint32(len(val)))
	be.PutUint64(hdr[:8], recordSum(w.salt, off, hdr[8:], key, val))

	if _, err := writeAll(w.fd, hdr[:]); err != nil {
		return err
	}

	if _, err := writeAll(w.fd, key); err != nil {
		return err
	}

	if _, err := writeAll(w.fd, val); err != nil {
		return err
	}

	w.off += _RecHeaderSize + uint64(len(key)) + uint64(len(val))
	return nil
}

// checksum of a record at offset 'off'; 'lens' is the encoded klen, vlen
func recordSum(salt []byte, off uint64, lens, key, val []byte) uint64 {
	var o [8]byte

	binary.BigEndian.PutUint64(o[:], off)

	h := siphash.New(salt)
	h.Write(o[:])
	h.Write(lens)
	h.Write(key)
	h.Write(val)
	return h.Sum64()
}

// siphash keys from the 16 byte salt
func sipKeys(salt []byte) (uint64, uint64) {
	le := binary.LittleEndian
	return le.Uint64(salt[:8]), le.Uint64(salt[8:16])
}

// write all bytes
func writeAll(w io.Writer, buf []byte) (int, error) {
	n, err := w.Write(buf)
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return n, errShortWrite("db", len(buf), n)
	}
	return n, nil
}
