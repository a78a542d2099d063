package blacklist

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable point-in-time view of active blacklist values,
// used by the heuristic layer for O(1) lookups without touching the store.
type Snapshot struct {
	addresses map[string]struct{}
	programs  map[string]struct{}
	loadedAt  time.Time
}

// IsBlacklisted reports whether the address is actively blacklisted.
func (s *Snapshot) IsBlacklisted(address string) bool {
	_, ok := s.addresses[address]
	return ok
}

// IsProgramBlacklisted reports whether the program ID is actively blacklisted.
func (s *Snapshot) IsProgramBlacklisted(programID string) bool {
	_, ok := s.programs[programID]
	return ok
}

// LoadedAt reports when this snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Size reports the number of active values in the snapshot.
func (s *Snapshot) Size() int {
	return len(s.addresses) + len(s.programs)
}

// Cache keeps the current blacklist snapshot and refreshes it from the store.
// Same lifecycle as the trusted-domain registry: Load at startup, Start a
// background refresher, Close on shutdown.
type Cache struct {
	store    Store
	logger   *slog.Logger
	interval time.Duration

	snapshot atomic.Pointer[Snapshot]
	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

// NewCache creates a cache backed by the given store.
func NewCache(store Store, refreshInterval time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if refreshInterval <= 0 {
		refreshInterval = time.Minute
	}
	c := &Cache{
		store:    store,
		logger:   logger,
		interval: refreshInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.snapshot.Store(&Snapshot{
		addresses: make(map[string]struct{}),
		programs:  make(map[string]struct{}),
	})
	return c
}

// Load rebuilds the snapshot from the store and swaps it in atomically.
func (c *Cache) Load(ctx context.Context) error {
	entries, err := c.store.List(ctx)
	if err != nil {
		return err
	}
	next := &Snapshot{
		addresses: make(map[string]struct{}),
		programs:  make(map[string]struct{}),
		loadedAt:  time.Now().UTC(),
	}
	for _, e := range entries {
		if !e.Active {
			continue
		}
		switch e.Type {
		case TypeAddress:
			next.addresses[e.Value] = struct{}{}
		case TypeProgram:
			next.programs[e.Value] = struct{}{}
		}
	}
	c.snapshot.Store(next)
	return nil
}

// Start runs the periodic refresh loop until Close is called. A failed
// refresh keeps the previous snapshot.
func (c *Cache) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.Load(ctx); err != nil {
					c.logger.Warn("blacklist refresh failed", "error", err)
				}
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the refresh loop. Safe to call when Start never ran.
func (c *Cache) Close() {
	close(c.stop)
	if c.started.Load() {
		<-c.done
	}
}

// Current returns the active snapshot. The returned value is immutable and
// safe to hold across a pipeline invocation.
func (c *Cache) Current() *Snapshot {
	return c.snapshot.Load()
}
