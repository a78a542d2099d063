package breaker

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists per-agent breaker records. Get returns ErrNotFound for
// unknown agents; Put upserts.
type Store interface {
	Get(ctx context.Context, agentID string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
	List(ctx context.Context) ([]*Record, error)
}

// MemoryStore is the in-memory Store used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Get(ctx context.Context, agentID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.AgentID] = copyRecord(rec)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func copyRecord(rec *Record) *Record {
	cp := *rec
	if rec.AnomalyEvents != nil {
		cp.AnomalyEvents = make([]time.Time, len(rec.AnomalyEvents))
		copy(cp.AnomalyEvents, rec.AnomalyEvents)
	}
	return &cp
}
