package cache

import (
	"fmt"
	"sort"
	"time"
)

// strategyClock 评分策略使用的时间源，缓存创建时设为缓存自身的时钟。
type strategyClock struct {
	nowFn func() time.Time
}

func (c *strategyClock) setClock(now func() time.Time) { c.nowFn = now }

func (c *strategyClock) now() time.Time {
	if c.nowFn == nil {
		return time.Now()
	}
	return c.nowFn()
}

type clockSetter interface {
	setClock(now func() time.Time)
}

// NewStrategy 根据配置中的淘汰策略创建对应实现。
func NewStrategy[K comparable, V any](cfg *CacheConfig) (EvictionStrategy[K, V], error) {
	if cfg == nil {
		cfg = DefaultCacheConfig()
	}
	policy := cfg.EvictionPolicy
	if policy == "" {
		policy = PolicyLRU
	}
	policy, err := ParseEvictionPolicy(string(policy))
	if err != nil {
		return nil, err
	}

	switch policy {
	case PolicyLRU:
		return NewLRUStrategy[K, V](), nil
	case PolicyLFU:
		return NewLFUStrategy[K, V](), nil
	case PolicyFIFO:
		return NewFIFOStrategy[K, V](), nil
	case PolicyRandom:
		return NewRandomStrategy[K, V](), nil
	case PolicySizeBased:
		if cfg.MaxMemoryMB <= 0 {
			return nil, NewCacheError(ErrCodeCapacityMisconfigured, "size_based policy requires max_memory_mb > 0")
		}
		return NewSizeBasedStrategy[K, V](cfg.MaxMemoryBytes(), cfg.PriorityWeights), nil
	case PolicyAdaptive:
		return NewAdaptiveStrategy[K, V](cfg.AdaptiveMode, cfg.PredictionEnabled), nil
	case PolicyWTinyLFU:
		return NewWTinyLFUStrategy[K, V](cfg.WindowSize), nil
	case PolicySegmentedLRU:
		return NewSegmentedLRUStrategy[K, V](cfg.ProbationaryCapacity, cfg.ProtectedCapacity), nil
	case PolicyClock:
		return NewClockStrategy[K, V](), nil
	}
	return nil, NewCacheError(ErrCodeConfigInvalid, fmt.Sprintf("unsupported eviction policy %q", policy))
}

// selectOrdered 按 less 稳定排序后取前 target 个键，不修改传入的切片。
func selectOrdered[K comparable, V any](candidates []Candidate[K, V], target int, less func(a, b *Entry[V]) bool) []K {
	if len(candidates) == 0 || target <= 0 {
		return nil
	}
	sorted := make([]Candidate[K, V], len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i].Entry, sorted[j].Entry)
	})
	return firstKeys(sorted, target)
}

func firstKeys[K comparable, V any](candidates []Candidate[K, V], target int) []K {
	if target > len(candidates) {
		target = len(candidates)
	}
	keys := make([]K, 0, target)
	for _, c := range candidates[:target] {
		keys = append(keys, c.Key)
	}
	return keys
}

// scored 评分后的候选，idx 为快照中的位置，用于稳定的并列顺序。
type scored struct {
	idx   int
	score float64
	size  int64
}
