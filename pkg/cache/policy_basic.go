package cache

// LRUStrategy 淘汰最久未访问的条目。
type LRUStrategy[K comparable, V any] struct{}

// NewLRUStrategy 创建LRU策略
func NewLRUStrategy[K comparable, V any]() *LRUStrategy[K, V] {
	return &LRUStrategy[K, V]{}
}

func (*LRUStrategy[K, V]) Policy() EvictionPolicy { return PolicyLRU }

// SelectForEviction 按最后访问时间升序选择，时间相同时保持快照顺序。
func (*LRUStrategy[K, V]) SelectForEviction(candidates []Candidate[K, V], target int) []K {
	return selectOrdered(candidates, target, func(a, b *Entry[V]) bool {
		return a.lastAccessed.Load() < b.lastAccessed.Load()
	})
}

// LFUStrategy 淘汰访问次数最少的条目。
type LFUStrategy[K comparable, V any] struct{}

// NewLFUStrategy 创建LFU策略
func NewLFUStrategy[K comparable, V any]() *LFUStrategy[K, V] {
	return &LFUStrategy[K, V]{}
}

func (*LFUStrategy[K, V]) Policy() EvictionPolicy { return PolicyLFU }

// SelectForEviction 按访问次数升序选择。
func (*LFUStrategy[K, V]) SelectForEviction(candidates []Candidate[K, V], target int) []K {
	return selectOrdered(candidates, target, func(a, b *Entry[V]) bool {
		return a.AccessCount() < b.AccessCount()
	})
}

// FIFOStrategy 淘汰最早创建的条目。
type FIFOStrategy[K comparable, V any] struct{}

// NewFIFOStrategy 创建FIFO策略
func NewFIFOStrategy[K comparable, V any]() *FIFOStrategy[K, V] {
	return &FIFOStrategy[K, V]{}
}

func (*FIFOStrategy[K, V]) Policy() EvictionPolicy { return PolicyFIFO }

// SelectForEviction 按创建时间升序选择。
func (*FIFOStrategy[K, V]) SelectForEviction(candidates []Candidate[K, V], target int) []K {
	return selectOrdered(candidates, target, func(a, b *Entry[V]) bool {
		return a.createdAt.Before(b.createdAt)
	})
}
