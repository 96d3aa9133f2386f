package cache

import "sync"

// shard 持有一部分键空间，读写锁只保护本分片的 map。
type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]*Entry[V]
}

func newShards[K comparable, V any](n int) []*shard[K, V] {
	shards := make([]*shard[K, V], n)
	for i := range shards {
		shards[i] = &shard[K, V]{items: make(map[K]*Entry[V])}
	}
	return shards
}
