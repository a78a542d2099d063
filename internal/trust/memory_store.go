package trust

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory trusted domain store for tests and demo mode.
type MemoryStore struct {
	mu      sync.RWMutex
	domains map[string]Domain // by normalized domain
}

// NewMemoryStore creates a new in-memory store seeded with the given domains.
func NewMemoryStore(seed ...Domain) *MemoryStore {
	m := &MemoryStore{domains: make(map[string]Domain)}
	for _, d := range seed {
		d.Domain = NormalizeHost(d.Domain)
		m.domains[d.Domain] = d
	}
	return m
}

func (m *MemoryStore) List(_ context.Context) ([]Domain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Domain, 0, len(m.domains))
	for _, d := range m.domains {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Domain < result[j].Domain
	})
	return result, nil
}

func (m *MemoryStore) Add(_ context.Context, d Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d.Domain = NormalizeHost(d.Domain)
	if _, ok := m.domains[d.Domain]; ok {
		return ErrExists
	}
	m.domains[d.Domain] = d
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	domain = NormalizeHost(domain)
	if _, ok := m.domains[domain]; !ok {
		return ErrNotFound
	}
	delete(m.domains, domain)
	return nil
}

var _ Store = (*MemoryStore)(nil)
