// Package breaker implements the per-agent circuit breaker with
// closed → open → half_open transitions and persistent state.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kyvernlabs/shield/internal/chain"
	"github.com/kyvernlabs/shield/internal/metrics"
	"github.com/kyvernlabs/shield/internal/syncutil"
)

var (
	ErrNotFound = errors.New("breaker state not found")

	// ErrStateConflict marks an operator action invalid for the current
	// state, such as tripping an already-open breaker.
	ErrStateConflict = errors.New("breaker state conflict")
)

// Tunables are the per-agent breaker parameters. Zero values fall back to
// the service defaults.
type Tunables struct {
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration
}

// Record is the persistent breaker state for one agent. AnomalyEvents
// holds block timestamps inside the sliding window; pruning happens on
// every write.
type Record struct {
	AgentID         string        `json:"agent_id"`
	State           chain.State   `json:"-"`
	AnomalyEvents   []time.Time   `json:"anomaly_events,omitempty"`
	LastTriggeredAt time.Time     `json:"last_triggered_at,omitzero"`
	CooldownEndsAt  time.Time     `json:"cooldown_ends_at,omitzero"`
	ProbeInFlight   bool          `json:"probe_in_flight,omitempty"`
	Cooldown        time.Duration `json:"-"`
	TotalAnalyzed   uint64        `json:"total_analyzed"`
	TotalBlocked    uint64        `json:"total_blocked"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Preflight is the breaker's answer before the pipeline runs.
type Preflight struct {
	State   chain.State
	Allowed bool
	Probe   bool // half_open: this request is the recovery probe
}

// Breaker serializes per-agent state changes behind a context-aware
// sharded mutex. The lock is held only across Preflight or Record, never
// across the semantic analysis call in between.
type Breaker struct {
	store        Store
	locks        *syncutil.ContextShardedMutex
	defaults     Tunables
	logger       *slog.Logger
	onTransition func(agentID string, from, to chain.State)
	now          func() time.Time
}

func New(store Store, defaults Tunables, logger *slog.Logger) *Breaker {
	if defaults.Threshold <= 0 {
		defaults.Threshold = 3
	}
	if defaults.Window <= 0 {
		defaults.Window = time.Hour
	}
	if defaults.Cooldown <= 0 {
		defaults.Cooldown = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		store:    store,
		locks:    syncutil.NewContextShardedMutex(),
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

// OnTransition sets a callback fired after every state change, outside the
// per-agent lock.
func (b *Breaker) OnTransition(fn func(agentID string, from, to chain.State)) {
	b.onTransition = fn
}

func (b *Breaker) tunables(t *Tunables) Tunables {
	eff := b.defaults
	if t == nil {
		return eff
	}
	if t.Threshold > 0 {
		eff.Threshold = t.Threshold
	}
	if t.Window > 0 {
		eff.Window = t.Window
	}
	if t.Cooldown > 0 {
		eff.Cooldown = t.Cooldown
	}
	return eff
}

// Preflight checks whether the agent's requests may enter the pipeline. An
// open breaker past its cooldown moves to half_open and admits one probe;
// an open breaker inside the cooldown short-circuits to a block, still
// counted in the totals.
func (b *Breaker) Preflight(ctx context.Context, agentID string, tun *Tunables) (*Preflight, error) {
	unlock, err := b.locks.LockContext(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("acquire breaker lock: %w", err)
	}
	defer unlock()

	rec, err := b.load(ctx, agentID, tun)
	if err != nil {
		return nil, err
	}
	now := b.now()

	var transition *[2]chain.State
	pf := &Preflight{State: rec.State, Allowed: true}
	switch rec.State {
	case chain.StateOpen:
		if now.Before(rec.CooldownEndsAt) {
			pf.Allowed = false
			rec.TotalAnalyzed++
			rec.TotalBlocked++
			rec.UpdatedAt = now
			metrics.BreakerShortCircuitsTotal.Inc()
			if err := b.store.Put(ctx, rec); err != nil {
				return nil, fmt.Errorf("persist breaker state: %w", err)
			}
			return pf, nil
		}
		transition = b.transition(rec, chain.StateHalfOpen, now)
		rec.ProbeInFlight = true
		pf.State = rec.State
		pf.Probe = true
		if err := b.store.Put(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist breaker state: %w", err)
		}
	case chain.StateHalfOpen:
		if rec.ProbeInFlight {
			// One probe at a time. Everything else is rejected until the
			// probe's verdict decides the transition.
			pf.Allowed = false
			rec.TotalAnalyzed++
			rec.TotalBlocked++
			rec.UpdatedAt = now
			metrics.BreakerShortCircuitsTotal.Inc()
			if err := b.store.Put(ctx, rec); err != nil {
				return nil, fmt.Errorf("persist breaker state: %w", err)
			}
			return pf, nil
		}
		rec.ProbeInFlight = true
		rec.UpdatedAt = now
		pf.Probe = true
		if err := b.store.Put(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist breaker state: %w", err)
		}
	}

	b.fire(agentID, transition)
	return pf, nil
}

// Record folds one pipeline verdict into the breaker state. Call it only
// for requests that actually ran the pipeline; short-circuited requests
// were already counted in Preflight.
func (b *Breaker) Record(ctx context.Context, agentID string, tun *Tunables, blocked bool) (*Record, error) {
	unlock, err := b.locks.LockContext(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("acquire breaker lock: %w", err)
	}
	defer unlock()

	eff := b.tunables(tun)
	rec, err := b.load(ctx, agentID, tun)
	if err != nil {
		return nil, err
	}
	now := b.now()
	rec.TotalAnalyzed++
	if blocked {
		rec.TotalBlocked++
	}

	var transition *[2]chain.State
	switch rec.State {
	case chain.StateHalfOpen:
		rec.ProbeInFlight = false
		if blocked {
			// Probe failed. Reopen with a doubled cooldown.
			rec.Cooldown = rec.Cooldown * 2
			rec.LastTriggeredAt = now
			rec.CooldownEndsAt = now.Add(rec.Cooldown)
			transition = b.transition(rec, chain.StateOpen, now)
		} else {
			rec.AnomalyEvents = nil
			rec.Cooldown = eff.Cooldown
			transition = b.transition(rec, chain.StateClosed, now)
		}
	case chain.StateClosed:
		if blocked {
			rec.AnomalyEvents = append(rec.AnomalyEvents, now)
			rec.AnomalyEvents = pruneEvents(rec.AnomalyEvents, now.Add(-eff.Window))
			if len(rec.AnomalyEvents) >= eff.Threshold {
				rec.Cooldown = eff.Cooldown
				rec.LastTriggeredAt = now
				rec.CooldownEndsAt = now.Add(rec.Cooldown)
				transition = b.transition(rec, chain.StateOpen, now)
			}
		} else {
			rec.AnomalyEvents = pruneEvents(rec.AnomalyEvents, now.Add(-eff.Window))
		}
	}
	rec.UpdatedAt = now

	if err := b.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist breaker state: %w", err)
	}
	b.fire(agentID, transition)
	return rec, nil
}

// Trip forces the breaker open, starting a fresh base cooldown. Tripping
// an already-open breaker is a conflict.
func (b *Breaker) Trip(ctx context.Context, agentID string, tun *Tunables) (*Record, error) {
	unlock, err := b.locks.LockContext(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("acquire breaker lock: %w", err)
	}
	defer unlock()

	eff := b.tunables(tun)
	rec, err := b.load(ctx, agentID, tun)
	if err != nil {
		return nil, err
	}
	if rec.State == chain.StateOpen {
		return nil, fmt.Errorf("%w: breaker already open", ErrStateConflict)
	}
	now := b.now()
	rec.Cooldown = eff.Cooldown
	rec.LastTriggeredAt = now
	rec.CooldownEndsAt = now.Add(rec.Cooldown)
	rec.ProbeInFlight = false
	rec.UpdatedAt = now
	transition := b.transition(rec, chain.StateOpen, now)
	if err := b.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist breaker state: %w", err)
	}
	b.fire(agentID, transition)
	return rec, nil
}

// Reset closes the breaker and clears the anomaly window. Resetting a
// breaker that is already closed is a conflict.
func (b *Breaker) Reset(ctx context.Context, agentID string, tun *Tunables) (*Record, error) {
	unlock, err := b.locks.LockContext(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("acquire breaker lock: %w", err)
	}
	defer unlock()

	eff := b.tunables(tun)
	rec, err := b.load(ctx, agentID, tun)
	if err != nil {
		return nil, err
	}
	if rec.State == chain.StateClosed {
		return nil, fmt.Errorf("%w: breaker already closed", ErrStateConflict)
	}
	now := b.now()
	rec.AnomalyEvents = nil
	rec.Cooldown = eff.Cooldown
	rec.CooldownEndsAt = time.Time{}
	rec.ProbeInFlight = false
	rec.UpdatedAt = now
	transition := b.transition(rec, chain.StateClosed, now)
	if err := b.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist breaker state: %w", err)
	}
	b.fire(agentID, transition)
	return rec, nil
}

// Status returns a copy of the agent's breaker record. Unknown agents get
// a fresh closed record that is not persisted.
func (b *Breaker) Status(ctx context.Context, agentID string) (*Record, error) {
	rec, err := b.store.Get(ctx, agentID)
	if errors.Is(err, ErrNotFound) {
		now := b.now()
		return &Record{
			AgentID:   agentID,
			State:     chain.StateClosed,
			Cooldown:  b.defaults.Cooldown,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load breaker state: %w", err)
	}
	return rec, nil
}

func (b *Breaker) load(ctx context.Context, agentID string, tun *Tunables) (*Record, error) {
	rec, err := b.store.Get(ctx, agentID)
	if errors.Is(err, ErrNotFound) {
		now := b.now()
		return &Record{
			AgentID:   agentID,
			State:     chain.StateClosed,
			Cooldown:  b.tunables(tun).Cooldown,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load breaker state: %w", err)
	}
	return rec, nil
}

// transition mutates the record's state and returns the edge for deferred
// callback delivery. Caller holds the agent lock.
func (b *Breaker) transition(rec *Record, to chain.State, now time.Time) *[2]chain.State {
	from := rec.State
	if from == to {
		return nil
	}
	rec.State = to
	rec.UpdatedAt = now
	metrics.BreakerTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	b.logger.Info("breaker transition",
		"agent_id", rec.AgentID,
		"from", from.String(),
		"to", to.String())
	return &[2]chain.State{from, to}
}

// fire delivers the transition callback asynchronously so a slow consumer
// never extends the time the agent lock is held.
func (b *Breaker) fire(agentID string, edge *[2]chain.State) {
	if edge == nil || b.onTransition == nil {
		return
	}
	fn := b.onTransition
	go fn(agentID, edge[0], edge[1])
}

func pruneEvents(events []time.Time, cutoff time.Time) []time.Time {
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
