// Package cache 提供可插拔淘汰策略的并发内存缓存：分片存储、TTL、九种淘汰策略、统计与指标。
package cache

import "time"

// Cache 定义了协作层（会话共享、LSP/AI结果缓存等）使用的缓存接口。
// 协作层自行为键加命名空间前缀，缓存本身不提供多租户隔离。
type Cache[K comparable, V any] interface {
	// Get 读取值，命中时更新访问信息。缺失或过期返回 false。
	Get(key K) (V, bool)
	// Insert 写入值并覆盖已有条目。ttl 为 0 时使用默认TTL，NoExpiration 表示永不过期。
	Insert(key K, value V, ttl time.Duration, opts ...InsertOption)
	// Remove 删除并返回旧值。
	Remove(key K) (V, bool)
	// Contains 只读判断键是否存在且未过期。
	Contains(key K) bool
	// Size 返回当前条目数。
	Size() int
	// Stats 返回统计快照。
	Stats() StatsSnapshot
	// CleanupExpired 清理全部过期条目并返回数量。
	CleanupExpired() int
	// Clear 清空所有条目。
	Clear()
}

// Candidate 淘汰候选：键与条目快照。
type Candidate[K comparable, V any] struct {
	Key   K
	Entry *Entry[V]
}

// EvictionStrategy 淘汰策略。只返回键，真正的删除由 Store 执行。
// 返回数量不超过 targetCount，可以更少。
type EvictionStrategy[K comparable, V any] interface {
	Policy() EvictionPolicy
	SelectForEviction(candidates []Candidate[K, V], targetCount int) []K
}

// AccessObserver 由需要维护自身状态的策略实现（分段LRU、时钟）。
// Store 在持有分片锁之外调用这些回调。
type AccessObserver[K comparable] interface {
	OnAdd(key K)
	OnAccess(key K)
	OnRemove(key K)
}

// ObservationRecorder 由自适应策略实现，接收命中率与吞吐量样本。
type ObservationRecorder interface {
	RecordObservation(hitRate, throughput float64)
}

// Cloner 值类型可实现该接口，Get 会返回克隆而不是共享引用。
type Cloner[V any] interface {
	Clone() V
}
