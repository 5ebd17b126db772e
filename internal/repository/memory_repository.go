package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/anthropics/convergence-engine/contracts"
)

// MemoryRepository is an in-memory contracts.MemoryRepository, namespaced
// by Namespace+Key, distinct from the run-scoped contracts.MemoryManager
// used during a single DAG execution.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]contracts.MemoryEntry
}

// NewMemoryRepository creates an empty in-memory long-term memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]contracts.MemoryEntry)}
}

func memoryKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// Add stores entry, overwriting any existing value at the same
// namespace+key.
func (r *MemoryRepository) Add(ctx context.Context, entry contracts.MemoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[memoryKey(entry.Namespace, entry.Key)] = entry
	return nil
}

// Get returns the entry stored under namespace+key, or nil if absent.
func (r *MemoryRepository) Get(ctx context.Context, namespace, key string) (*contracts.MemoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[memoryKey(namespace, key)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Search returns every entry whose key has the given prefix, optionally
// narrowed to kind (an empty kind matches every entry type).
func (r *MemoryRepository) Search(ctx context.Context, prefix string, kind contracts.MemoryCheckKind) ([]contracts.MemoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []contracts.MemoryEntry
	for _, e := range r.entries {
		if kind != "" && e.Type != kind {
			continue
		}
		if prefix == "" || strings.HasPrefix(e.Key, prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Update overwrites the value of an existing entry.
func (r *MemoryRepository) Update(ctx context.Context, entry contracts.MemoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memoryKey(entry.Namespace, entry.Key)
	if _, ok := r.entries[k]; !ok {
		return contracts.ErrInvalidInput
	}
	r.entries[k] = entry
	return nil
}

// Delete removes the entry stored under namespace+key.
func (r *MemoryRepository) Delete(ctx context.Context, namespace, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, memoryKey(namespace, key))
	return nil
}
