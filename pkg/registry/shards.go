package registry

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// shardCount is the number of independently locked buckets per index.
// Must be a power of two.
const shardCount = 32

// shard is one bucket of a shardedMap, guarded by its own lock.
type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// shardedMap is a string-keyed map split across shardCount buckets so that
// writers to different keys rarely contend. The entry count is tracked
// atomically and only changed while the owning shard lock is held.
type shardedMap[V any] struct {
	shards [shardCount]*shard[V]
	size   atomic.Int64
}

func newShardedMap[V any]() *shardedMap[V] {
	m := &shardedMap[V]{}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *shardedMap[V]) shardFor(key string) *shard[V] {
	return m.shards[xxhash.Sum64String(key)&(shardCount-1)]
}

// get returns a copy of the value stored under key.
func (m *shardedMap[V]) get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// swap stores value under key and returns the previous value, if any.
func (m *shardedMap[V]) swap(key string, value V) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, loaded := s.items[key]
	s.items[key] = value
	if !loaded {
		m.size.Add(1)
	}
	return prev, loaded
}

// remove deletes key and returns the removed value, if any.
func (m *shardedMap[V]) remove(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, loaded := s.items[key]
	if loaded {
		delete(s.items, key)
		m.size.Add(-1)
	}
	return prev, loaded
}

// clear empties every shard, one shard at a time. Concurrent writers to a
// shard that has already been cleared are kept.
func (m *shardedMap[V]) clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		m.size.Add(-int64(len(s.items)))
		s.items = make(map[string]V)
		s.mu.Unlock()
	}
}

func (m *shardedMap[V]) len() int {
	return int(m.size.Load())
}
