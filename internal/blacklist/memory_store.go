package blacklist

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory blacklist store for tests and demo mode.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry  // by ID
	byValue map[string]string // value -> ID
}

// NewMemoryStore creates a new in-memory store seeded with the given entries.
func NewMemoryStore(seed ...Entry) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]Entry),
		byValue: make(map[string]string),
	}
	for _, e := range seed {
		m.entries[e.ID] = e
		m.byValue[e.Value] = e.ID
	}
	return m
}

func (m *MemoryStore) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Value < result[j].Value
	})
	return result, nil
}

func (m *MemoryStore) Get(_ context.Context, value string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byValue[value]
	if !ok {
		return nil, ErrNotFound
	}
	e := m.entries[id]
	return &e, nil
}

func (m *MemoryStore) Add(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byValue[e.Value]; ok {
		return ErrExists
	}
	m.entries[e.ID] = e
	m.byValue[e.Value] = e.ID
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	delete(m.byValue, e.Value)
	return nil
}

var _ Store = (*MemoryStore)(nil)
