// Package kv is the small key-value layer behind the transcript journal.
//
// Keys are paths of segments, e.g. Key{"session", "6f1c…", "msg", "00000000000000000007"},
// stored as the segments joined by '/'. Scans are lexicographic, so callers
// that need numeric order zero-pad numeric segments.
//
// Two stores are provided: Memory for tests and ephemeral sessions, and
// Badger for transcripts that survive restarts.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded form.
const Separator = "/"

// Key is a hierarchical key.
type Key []string

// String returns the encoded key.
func (k Key) String() string {
	return strings.Join(k, Separator)
}

// scanPrefix returns the encoded prefix used to match children of k.
// An empty key matches everything.
func (k Key) scanPrefix() string {
	if len(k) == 0 {
		return ""
	}
	return k.String() + Separator
}

func parseKey(s string) Key {
	return Key(strings.Split(s, Separator))
}

// Entry is a key and its value.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is implemented by Memory and Badger.
type Store interface {
	// Get returns the value stored at key or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// Scan yields every entry below prefix in key order.
	Scan(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Replace atomically deletes everything below prefix and stores entries.
	Replace(ctx context.Context, prefix Key, entries []Entry) error

	// Close releases the store.
	Close() error
}
