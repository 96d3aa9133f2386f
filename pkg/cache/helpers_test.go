package cache

import (
	"sync"
	"time"

	"cachecore/pkg/logger"
)

// fakeClock 可手动推进的时间源
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testEntry 构造指定时间和访问次数的条目
func testEntry(created, accessed time.Time, count uint64) *Entry[string] {
	e := NewEntry("v", 0, created)
	e.accessCount.Store(count)
	e.touch(accessed)
	return e
}

func makeCandidates(keys []string, entries []*Entry[string]) []Candidate[string, string] {
	out := make([]Candidate[string, string], len(keys))
	for i, k := range keys {
		entries[i].seq = uint64(i + 1)
		out[i] = Candidate[string, string]{Key: k, Entry: entries[i]}
	}
	return out
}

func testConfig(policy EvictionPolicy, maxEntries int) *CacheConfig {
	cfg := DefaultCacheConfig()
	cfg.EvictionPolicy = policy
	cfg.MaxEntries = maxEntries
	cfg.ShardCount = 4
	cfg.DefaultTTL = 0
	return cfg
}

func newTestStore[V any](cfg *CacheConfig, opts ...Option) *Store[string, V] {
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	s, err := New[string, V](cfg, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// rawEntry 直接读取分片中的条目
func rawEntry[V any](s *Store[string, V], key string) *Entry[V] {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.items[key]
}
