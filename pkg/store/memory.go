package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/btree"
)

// Memory is an in-process Backend ordered by key.
type Memory struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[Entry]
	closed bool
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		tree: btree.NewG(32, func(a, b Entry) bool { return a.Key < b.Key }),
	}
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: put %s: memory backend closed", ErrBackend, key)
	}
	m.tree.ReplaceOrInsert(Entry{Key: key, Value: append([]byte(nil), value...)})
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("%w: get %s: memory backend closed", ErrBackend, key)
	}
	e, ok := m.tree.Get(Entry{Key: key})
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), e.Value...), nil
}

func (m *Memory) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("%w: scan %s: memory backend closed", ErrBackend, prefix)
	}
	entries := []Entry{}
	m.tree.AscendGreaterOrEqual(Entry{Key: prefix}, func(e Entry) bool {
		if !strings.HasPrefix(e.Key, prefix) {
			return false
		}
		entries = append(entries, Entry{Key: e.Key, Value: append([]byte(nil), e.Value...)})
		return true
	})
	return entries, nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
