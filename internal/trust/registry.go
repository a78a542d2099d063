package trust

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Registry serves trusted-domain classification from an immutable in-memory
// snapshot. The snapshot is replaced wholesale on refresh; readers never see
// a partially updated view. Explicit lifecycle: Load at startup, Start a
// background refresher, Close on shutdown.
type Registry struct {
	store    Store
	logger   *slog.Logger
	interval time.Duration

	snapshot atomic.Pointer[map[string]Domain]
	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(store Store, refreshInterval time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if refreshInterval <= 0 {
		refreshInterval = time.Minute
	}
	r := &Registry{
		store:    store,
		logger:   logger,
		interval: refreshInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	empty := make(map[string]Domain)
	r.snapshot.Store(&empty)
	return r
}

// Load fetches the current domain set from the store and swaps it in.
func (r *Registry) Load(ctx context.Context) error {
	domains, err := r.store.List(ctx)
	if err != nil {
		return err
	}
	next := make(map[string]Domain, len(domains))
	for _, d := range domains {
		next[NormalizeHost(d.Domain)] = d
	}
	r.snapshot.Store(&next)
	return nil
}

// Start runs the periodic refresh loop until Close is called. A failed
// refresh keeps the previous snapshot; classification never goes dark
// because the store hiccuped.
func (r *Registry) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.Load(ctx); err != nil {
					r.logger.Warn("trusted domain refresh failed", "error", err)
				}
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the refresh loop. Safe to call when Start never ran.
func (r *Registry) Close() {
	close(r.stop)
	if r.started.Load() {
		<-r.done
	}
}

// IsTrusted reports whether the normalized host is in the current snapshot.
func (r *Registry) IsTrusted(host string) bool {
	snap := *r.snapshot.Load()
	_, ok := snap[NormalizeHost(host)]
	return ok
}

// Size reports the number of domains in the current snapshot.
func (r *Registry) Size() int {
	return len(*r.snapshot.Load())
}
