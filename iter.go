// iter.go - forward iterator over the entries of a Table
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

// Iterator walks the entries of a table in ascending bucket order and
// within a bucket, in insertion order. It never modifies the table.
//
// An iterator is invalidated when the table gains a new entry or is
// destroyed; Next() then returns false and Err() says why. Combining into
// an existing key does not invalidate it.
type Iterator[K, S any] struct {
	t *Table[K, S]

	// current bucket and the position of the next entry in its chain
	b int
	i int

	// last entry returned by Next()
	cur *entry[K, S]

	gen uint64
	err error
}

// Iter returns an iterator positioned before the first entry of the
// table. For an empty table, the first call to Next() returns false.
func (t *Table[K, S]) Iter() *Iterator[K, S] {
	it := &Iterator[K, S]{
		t: t,
	}
	it.Rewind()
	return it
}

// Rewind resets the iterator to the state of a freshly created one.
func (it *Iterator[K, S]) Rewind() {
	if it.t == nil {
		it.err = ErrReleased
		return
	}

	it.cur = nil
	it.err = nil
	it.gen = it.t.gen
	it.b = it.t.nextOccupied(0)
	it.i = 0
	if it.t.destroyed {
		it.err = ErrDestroyed
	}
}

// Next returns the next key and its payload. It returns false when the
// iteration is exhausted or the iterator is no longer valid. Byte slice
// keys are returned as copies of the table's key.
func (it *Iterator[K, S]) Next() (K, S, bool) {
	var k K
	var s S

	if !it.valid() {
		return k, s, false
	}

	t := it.t
	for it.b < t.size {
		c := t.buckets[it.b]
		if it.i < len(c) {
			e := &c[it.i]
			it.i++
			it.cur = e
			return t.keyOut(e.key), e.store, true
		}

		it.b = t.nextOccupied(it.b + 1)
		it.i = 0
	}
	return k, s, false
}

// Current returns the pair last returned by Next(). It returns false if
// Next() hasn't been called since the iterator was created or rewound.
func (it *Iterator[K, S]) Current() (K, S, bool) {
	var k K
	var s S

	if !it.valid() || it.cur == nil {
		return k, s, false
	}
	return it.t.keyOut(it.cur.key), it.cur.store, true
}

// Release detaches the iterator from its table. Any subsequent use
// reports ErrReleased.
func (it *Iterator[K, S]) Release() {
	it.t = nil
	it.cur = nil
	it.err = ErrReleased
}

// Err returns the reason the iterator stopped early; it is nil when the
// iteration ran to completion.
func (it *Iterator[K, S]) Err() error {
	return it.err
}

func (it *Iterator[K, S]) valid() bool {
	switch {
	case it.err != nil:
		return false
	case it.t == nil:
		it.err = ErrReleased
	case it.t.destroyed:
		it.err = ErrDestroyed
	case it.t.gen != it.gen:
		it.err = ErrModified
	default:
		return true
	}

	it.cur = nil
	return false
}

// IterFunc calls 'fp' on every key and payload in iteration order. If
// 'fp' returns non-nil, the iteration stops and the error is propagated
// to the caller.
func (t *Table[K, S]) IterFunc(fp func(key K, store S) error) error {
	it := t.Iter()
	defer it.Release()

	for {
		k, s, ok := it.Next()
		if !ok {
			return it.Err()
		}
		if err := fp(k, s); err != nil {
			return err
		}
	}
}

// return the first occupied bucket at or after 'b'; t.size if there
// are none.
func (t *Table[K, S]) nextOccupied(b int) int {
	for ; b < t.size; b++ {
		if len(t.buckets[b]) > 0 {
			return b
		}
	}
	return t.size
}
