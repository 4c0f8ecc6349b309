// Package memory provides an in-memory kv.Store. It is safe for concurrent
// use and suitable for tests and single-instance deployments; data is lost
// on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mediauqi/money-tracker/internal/kv"
)

type entry struct {
	value   []byte
	version int64
}

// Store is a mutex-guarded map implementation of kv.Store.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]entry),
	}
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, 0, kv.ErrKeyNotFound
	}
	return cloneBytes(e.value), e.version, nil
}

// Put implements kv.Store.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[key]
	s.entries[key] = entry{value: cloneBytes(value), version: e.version + 1}
	return nil
}

// CompareAndSwap implements kv.Store.
func (s *Store) CompareAndSwap(ctx context.Context, key string, value []byte, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if expectedVersion == 0 {
		if ok {
			return kv.ErrVersionMismatch
		}
	} else if !ok || e.version != expectedVersion {
		return kv.ErrVersionMismatch
	}

	s.entries[key] = entry{value: cloneBytes(value), version: expectedVersion + 1}
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return kv.ErrKeyNotFound
	}
	delete(s.entries, key)
	return nil
}

// ScanPrefix implements kv.Store.
func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]kv.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]kv.Entry, 0)
	for key, e := range s.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		result = append(result, kv.Entry{Key: key, Value: cloneBytes(e.value), Version: e.version})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// cloneBytes copies b so callers cannot mutate stored values.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Ensure Store implements the kv.Store interface.
var _ kv.Store = (*Store)(nil)
