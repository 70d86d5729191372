// htab.go - fixed size hash table with separate chaining
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
	"fmt"
	"io"
	"reflect"
	"strings"
)

// HashFunc maps a key to an unsigned integer. The bucket for a key is
// the hash modulo the table size.
type HashFunc[K any] func(key K) uint64

// EqualFunc returns true if 'a' and 'b' denote the same key.
type EqualFunc[K any] func(a, b K) bool

// CombineFunc derives the new stored payload for a key from its previous
// payload and the key being inserted. 'ok' is false when the entry has
// never had a payload (i.e., the key is brand new); 'store' is then the
// zero value of S.
type CombineFunc[K, S any] func(store S, ok bool, key K) S

// FreeFunc is called exactly once per entry when the table is destroyed.
type FreeFunc[K, S any] func(key K, store S)

// entry is one key and its payload
type entry[K, S any] struct {
	key   K
	store S
	ok    bool
}

// chain holds the entries of one bucket in arrival order; a bucket is
// occupied iff its chain is non-empty.
type chain[K, S any] []entry[K, S]

// Table is a hash table with a fixed number of buckets. Collisions are
// resolved by chaining; new keys are appended to the tail of their
// bucket's chain. The table does not resize and entries can't be
// removed individually.
//
// A Table is not safe for concurrent use; callers must serialize access
// to it.
type Table[K, S any] struct {
	buckets []chain[K, S]
	size    int
	total   int

	hash    HashFunc[K]
	equal   EqualFunc[K]
	combine CombineFunc[K, S]
	free    FreeFunc[K, S]

	// copies a key before it is retained by the table; nil for
	// key types that don't alias caller memory.
	clone func(K) K

	// bumped on every structural change; iterators compare against it
	gen       uint64
	destroyed bool
}

// New creates a hash table with 'size' buckets.
//
// 'hash' and 'equal' may be nil for keys whose underlying type is a
// string or a byte slice; the table then uses StringHash/BytesHash and
// StringEqual/BytesEqual which treat keys as NUL terminated strings. For
// any other key type both must be supplied.
//
// 'combine' is invoked on every Insert() to compute the payload stored
// with the key. If it is nil, the table only records keys and every
// payload is the zero value of S.
//
// 'free' is invoked for every entry by Destroy(). If it is nil, Destroy()
// only drops the table's copy of the key and the payload remains the
// caller's responsibility.
func New[K, S any](size int, hash HashFunc[K], combine CombineFunc[K, S], equal EqualFunc[K], free FreeFunc[K, S]) (*Table[K, S], error) {
	if size <= 0 {
		return nil, fmt.Errorf("htab: %w: %d", ErrInvalidSize, size)
	}

	if hash == nil {
		if hash = defaultHash[K](); hash == nil {
			return nil, fmt.Errorf("htab: %w %T", ErrNoHash, *new(K))
		}
	}

	if equal == nil {
		if equal = defaultEqual[K](); equal == nil {
			return nil, fmt.Errorf("htab: %w %T", ErrNoEqual, *new(K))
		}
	}

	t := &Table[K, S]{
		buckets: make([]chain[K, S], size),
		size:    size,
		hash:    hash,
		equal:   equal,
		combine: combine,
		free:    free,
		clone:   keyCloner[K](),
	}
	return t, nil
}

// Len returns the number of distinct keys in the table
func (t *Table[K, S]) Len() int {
	return t.total
}

// Size returns the number of buckets
func (t *Table[K, S]) Size() int {
	return t.size
}

// Insert adds 'key' to the table if it isn't already present and runs
// the combine function on its entry. Combine runs for new and existing
// keys alike; this is how repeated inserts of a key accumulate state.
// Insert returns the entry's payload after combining.
func (t *Table[K, S]) Insert(key K) (S, error) {
	if t.destroyed {
		var z S
		return z, ErrDestroyed
	}

	i := t.index(key)
	e := t.buckets[i].find(key, t.equal)
	if e == nil {
		if t.clone != nil {
			key = t.clone(key)
		}

		c := append(t.buckets[i], entry[K, S]{key: key})
		t.buckets[i] = c
		e = &c[len(c)-1]
		t.total++
		t.gen++
	}

	if t.combine != nil {
		e.store = t.combine(e.store, e.ok, key)
		e.ok = true
	}
	return e.store, nil
}

// Store returns the payload stored with 'key'. The second result is false
// if the key is not in the table.
func (t *Table[K, S]) Store(key K) (S, bool) {
	if e := t.lookup(key); e != nil {
		return e.store, true
	}

	var z S
	return z, false
}

// Key returns the table's own copy of 'key' - i.e., the key that was
// first inserted among all keys equal to it. Byte slice keys are returned
// as a fresh copy; changing it doesn't change the table.
func (t *Table[K, S]) Key(key K) (K, bool) {
	if e := t.lookup(key); e != nil {
		return t.keyOut(e.key), true
	}

	var z K
	return z, false
}

// Destroy calls the free function on every entry - in bucket order and
// within a bucket, in insertion order - and releases the buckets.
// The table is unusable afterwards; destroying it again returns
// ErrDestroyed.
func (t *Table[K, S]) Destroy() error {
	if t.destroyed {
		return ErrDestroyed
	}

	var n int
	for i := range t.buckets {
		c := t.buckets[i]
		if t.free != nil {
			for j := range c {
				e := &c[j]
				t.free(e.key, e.store)
			}
		}
		n += len(c)
		t.buckets[i] = nil
	}

	printf("htab: %d in %d buckets; freed %d entries", t.total, t.size, n)

	t.buckets = nil
	t.size = 0
	t.total = 0
	t.hash = nil
	t.equal = nil
	t.combine = nil
	t.free = nil
	t.destroyed = true
	t.gen++
	return nil
}

// Desc returns a one line summary of the table's shape
func (t *Table[K, S]) Desc() string {
	if t.destroyed {
		return "htab: <destroyed>\n"
	}

	var occ, longest int
	for i := range t.buckets {
		n := len(t.buckets[i])
		if n == 0 {
			continue
		}
		occ++
		if n > longest {
			longest = n
		}
	}

	return fmt.Sprintf("htab: %d keys in %d buckets (%d occupied), longest chain %d, load %4.2f\n",
		t.total, t.size, occ, longest, float64(t.total)/float64(t.size))
}

// DumpMeta writes the summary and the chain length of every occupied
// bucket to 'w'.
func (t *Table[K, S]) DumpMeta(w io.Writer) {
	var b strings.Builder

	b.WriteString(t.Desc())
	for i := range t.buckets {
		if n := len(t.buckets[i]); n > 0 {
			fmt.Fprintf(&b, "  %3d: %d keys\n", i, n)
		}
	}

	io.WriteString(w, b.String())
}

// find the entry for key or return nil
func (t *Table[K, S]) lookup(key K) *entry[K, S] {
	if t.destroyed {
		return nil
	}

	i := t.index(key)
	return t.buckets[i].find(key, t.equal)
}

func (t *Table[K, S]) index(key K) int {
	return int(t.hash(key) % uint64(t.size))
}

// linear scan of the chain; first match wins.
func (c chain[K, S]) find(key K, equal EqualFunc[K]) *entry[K, S] {
	for i := range c {
		e := &c[i]
		if equal(key, e.key) {
			return e
		}
	}
	return nil
}

// keys of string kind or byte slice kind get the NUL terminated defaults;
// named types such as "type word string" included.
func defaultHash[K any]() HashFunc[K] {
	switch keyKind[K]() {
	case reflect.String:
		return func(k K) uint64 {
			return StringHash(keyString(k))
		}
	case reflect.Slice:
		return func(k K) uint64 {
			return BytesHash(keyBytes(k))
		}
	}
	return nil
}

func defaultEqual[K any]() EqualFunc[K] {
	switch keyKind[K]() {
	case reflect.String:
		return func(a, b K) bool {
			return StringEqual(keyString(a), keyString(b))
		}
	case reflect.Slice:
		return func(a, b K) bool {
			return BytesEqual(keyBytes(a), keyBytes(b))
		}
	}
	return nil
}

// byte slice keys alias caller memory; the table keeps its own copy.
func keyCloner[K any]() func(K) K {
	if keyKind[K]() != reflect.Slice {
		return nil
	}

	return func(k K) K {
		if b, ok := any(k).([]byte); ok {
			return any(bytes.Clone(b)).(K)
		}

		v := reflect.ValueOf(k)
		if v.IsNil() {
			return k
		}
		c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(c, v)
		return c.Interface().(K)
	}
}

// keyKind returns reflect.String or reflect.Slice for key types that have
// default functions and reflect.Invalid for everything else.
func keyKind[K any]() reflect.Kind {
	t := reflect.TypeFor[K]()
	switch {
	case t.Kind() == reflect.String:
		return reflect.String
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return reflect.Slice
	}
	return reflect.Invalid
}

func keyString[K any](k K) string {
	if s, ok := any(k).(string); ok {
		return s
	}
	return reflect.ValueOf(k).String()
}

func keyBytes[K any](k K) []byte {
	if b, ok := any(k).([]byte); ok {
		return b
	}
	return reflect.ValueOf(k).Bytes()
}

// keys handed out to callers are copies when the table owns a copy.
func (t *Table[K, S]) keyOut(k K) K {
	if t.clone != nil {
		return t.clone(k)
	}
	return k
}
