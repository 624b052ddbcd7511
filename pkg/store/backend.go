package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("not found")

	// ErrBackend marks I/O failures of a backend or other external collaborator.
	ErrBackend = errors.New("backend error")
)

// Entry is one key/value pair returned by a prefix scan.
type Entry struct {
	Key   string
	Value []byte
}

// Backend is a prefix-scannable key/value store. Implementations must be
// safe for concurrent use.
type Backend interface {
	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// ScanPrefix returns every entry whose key starts with prefix, in key order.
	ScanPrefix(ctx context.Context, prefix string) ([]Entry, error)

	// Close releases the backend's resources.
	Close() error
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or "" when no such bound exists.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
