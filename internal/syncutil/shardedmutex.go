// Package syncutil provides keyed locking helpers.
package syncutil

import (
	"hash/fnv"
	"slices"
	"sync"
)

const shardCount = 256

// ShardedMutex provides a fixed-size pool of mutexes keyed by string.
// Memory stays bounded however many keys are seen, at the cost of occasional
// false sharing between keys that hash to the same shard.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// LockMany acquires the mutexes for all keys and returns a function that
// releases them. Shards are taken in ascending index order and each shard at
// most once, so two callers locking overlapping key sets cannot deadlock.
func (s *ShardedMutex) LockMany(keys ...string) func() {
	idx := make([]uint32, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, shardIndex(k))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		s.shards[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			s.shards[idx[j]].Unlock()
		}
	}
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
