// doc.go - top level documentation
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

// Package htab implements a generic hash table with a fixed number of
// buckets and separate chaining. It is meant to be embedded as an
// indexing primitive: symbol tables, caches, dedup indexes, counters.
//
// The caller supplies up to four functions when creating a Table:
//   - hash: maps a key to a bucket (required except for string and
//     []byte keys)
//   - equal: decides key identity within a bucket (required except for
//     string and []byte keys)
//   - combine: derives the payload stored with a key; it runs on every
//     Insert() of the key, new or existing, so repeated inserts can
//     aggregate state (counts, running sums, lists)
//   - free: releases a key and its payload when the table is destroyed
//
// The default hash and equality treat keys as NUL terminated strings.
// Seeded alternatives (fasthash, siphash, xxhash) are provided for
// untrusted or binary keys.
//
// A table never resizes and never removes individual entries. It is not
// safe for concurrent use.
//
// htab can also serialize the keys and values of a table into an
// on-disk snapshot via 'DBWriter' and query it with 'DBReader'. The
// snapshot keeps the bucket structure of the table; every record is
// protected by a siphash checksum and the index by SHA512-256.
package htab
