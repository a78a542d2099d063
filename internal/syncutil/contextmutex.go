// Package syncutil holds the concurrency primitives used to serialize
// per-agent breaker state changes.
package syncutil

import (
	"context"
	"hash/fnv"
)

const shardCount = 256

// ContextShardedMutex is a fixed pool of channel-based locks keyed by
// string. Unlike sync.Mutex, a caller waiting on a contended key can bail
// out when its context is cancelled, so a stuck agent never wedges the
// whole request path.
type ContextShardedMutex struct {
	shards [shardCount]chan struct{}
}

func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
		m.shards[i] <- struct{}{} // start unlocked
	}
	return m
}

// LockContext acquires the shard for key. On success it returns an unlock
// function the caller must invoke exactly once; on cancellation it returns
// the context's error. Distinct keys may share a shard, which costs
// contention but never correctness.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	shard := m.shards[m.index(key)]
	select {
	case <-shard:
		return func() { shard <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *ContextShardedMutex) index(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
