// errors.go - public errors exposed by htab
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
	"errors"
	"fmt"
)

func errShortWrite(who string, exp, n int) error {
	return fmt.Errorf("%s: incomplete write; exp %d, saw %d", who, exp, n)
}

var (
	// ErrInvalidSize is returned when a table is created with zero or
	// negative number of buckets.
	ErrInvalidSize = errors.New("table size must be positive")

	// ErrNoHash is returned when the key type has no default hash function
	// and the caller didn't supply one.
	ErrNoHash = errors.New("no hash function for key type")

	// ErrNoEqual is returned when the key type has no default equality
	// function and the caller didn't supply one.
	ErrNoEqual = errors.New("no equality function for key type")

	// ErrDestroyed is returned when using a table after Destroy()
	ErrDestroyed = errors.New("table already destroyed")

	// ErrModified is reported by an iterator whose table gained new entries
	// after the iterator was created or rewound.
	ErrModified = errors.New("table modified during iteration")

	// ErrReleased is reported when using an iterator after Release()
	ErrReleased = errors.New("iterator already released")

	// ErrFrozen is returned when attempting to add new records to an already frozen DB
	// It is also returned when trying to freeze a DB that's already frozen.
	ErrFrozen = errors.New("DB already frozen")

	// ErrValueTooLarge is returned if the key or value length is larger than 2^32-1 bytes
	ErrValueTooLarge = errors.New("value is larger than 2^32-1 bytes")

	// ErrExists is returned if a duplicate key is added to the DB
	ErrExists = errors.New("key exists in DB")

	// ErrNoKey is returned when a key cannot be found in the DB
	ErrNoKey = errors.New("No such key")

	// Header too small for unmarshalling
	ErrTooSmall = errors.New("not enough data to unmarshal")
)
