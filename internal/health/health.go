// Package health aggregates readiness probes for the firewall's
// dependencies: the database, the blacklist cache, and the trusted
// domain registry.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is the outcome of one dependency check. Name always comes from
// registration, regardless of what the checker fills in.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Checker inspects one dependency. It must honor the context deadline;
// a checker that hangs stalls the whole health endpoint.
type Checker func(ctx context.Context) Status

type check struct {
	name string
	fn   Checker
}

// Registry holds the registered checks and runs them on demand.
type Registry struct {
	mu     sync.RWMutex
	checks []check
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a check under a fixed name. Checks run in registration
// order.
func (r *Registry) Register(name string, fn Checker) {
	r.mu.Lock()
	r.checks = append(r.checks, check{name: name, fn: fn})
	r.mu.Unlock()
}

// CheckAll runs every check and reports the aggregate: healthy only when
// all dependencies are. Each status carries the check's wall time.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	checks := make([]check, len(r.checks))
	copy(checks, r.checks)
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(checks))
	for _, c := range checks {
		start := time.Now()
		st := c.fn(ctx)
		st.Name = c.name
		st.LatencyMS = time.Since(start).Milliseconds()
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}
