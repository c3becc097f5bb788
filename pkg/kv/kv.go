// Package kv provides a small key-value store interface with hierarchical
// path-based keys. Keys are string slices (e.g. ["profile", "7f3a..."])
// joined with ':' for storage.
//
// Two implementations are provided: a BadgerDB-backed store for persistent
// data and an in-memory store for tests.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded representation.
// Segments must not contain it.
const Separator = ':'

// Key is a hierarchical path represented as a slice of string segments.
type Key []string

// String returns the encoded form of the key.
func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// encode converts a Key to its storage byte representation.
func encode(k Key) []byte {
	return []byte(k.String())
}

// decode converts a storage byte representation back to a Key.
func decode(b []byte) Key {
	parts := strings.Split(string(b), string(Separator))
	return Key(parts)
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the interface for a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries whose key starts with the given prefix,
	// in lexicographic order of the encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases any resources held by the store.
	Close() error
}

// prefixBytes returns the encoded prefix with a trailing separator so that
// listing ["a","b"] does not match key ["a","bc"]. An empty prefix matches
// everything.
func prefixBytes(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(encode(prefix), Separator)
}
