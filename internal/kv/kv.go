// Package kv defines the key-value store the ledger is built on. The store
// guarantees per-key atomicity only; there are no multi-key transactions.
// Cross-key consistency is the ledger's job, not the store's.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by Get and Delete for an absent key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrVersionMismatch is returned by CompareAndSwap when the key's
	// current version differs from the expected one. The caller should
	// re-read and retry.
	ErrVersionMismatch = errors.New("version mismatch")
)

// Entry is one key-value pair returned by ScanPrefix.
type Entry struct {
	Key     string
	Value   []byte
	Version int64
}

// Store is a durable mapping from string keys to arbitrary byte records.
// Versions start at 1 on first write and increase by one on every update,
// which gives CompareAndSwap its conditional-update semantics.
type Store interface {
	// Get returns the value and current version for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (value []byte, version int64, err error)

	// Put writes value unconditionally, creating the key if needed.
	Put(ctx context.Context, key string, value []byte) error

	// CompareAndSwap writes value only if the key's current version equals
	// expectedVersion. An expectedVersion of 0 means create-if-absent.
	// Returns ErrVersionMismatch if the condition does not hold.
	CompareAndSwap(ctx context.Context, key string, value []byte, expectedVersion int64) error

	// Delete removes the key, or returns ErrKeyNotFound.
	Delete(ctx context.Context, key string) error

	// ScanPrefix returns all entries whose key starts with prefix, ordered
	// by key.
	ScanPrefix(ctx context.Context, prefix string) ([]Entry, error)
}
