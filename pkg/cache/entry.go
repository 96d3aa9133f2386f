package cache

import (
	"math"
	"sync/atomic"
	"time"
)

// Entry 缓存条目。值与元数据在插入时确定，Get 只更新访问信息。
// 淘汰策略拿到的是条目快照，只能通过只读方法访问。
type Entry[V any] struct {
	value  V
	packed []byte // snappy 压缩后的值，非nil时 value 为零值

	createdAt    time.Time
	expiresAt    time.Time // 零值表示不过期
	ttl          time.Duration
	lastAccessed atomic.Int64 // UnixNano
	accessCount  atomic.Uint64

	metadata map[string]string
	size     int64  // 估算的字节数
	seq      uint64 // 插入序号，用于快照排序和代际校验
}

// NewEntry 创建条目。ttl<=0 表示不过期。
func NewEntry[V any](value V, ttl time.Duration, createdAt time.Time) *Entry[V] {
	e := &Entry[V]{
		value:     value,
		createdAt: createdAt,
	}
	e.lastAccessed.Store(createdAt.UnixNano())
	e.setTTL(ttl, createdAt)
	return e
}

func (e *Entry[V]) setTTL(ttl time.Duration, from time.Time) {
	if ttl > 0 {
		e.ttl = ttl
		e.expiresAt = from.Add(ttl)
		return
	}
	e.ttl = 0
	e.expiresAt = time.Time{}
}

// Value 返回存储的值。压缩存储的条目返回零值，需经由 Store 读取。
func (e *Entry[V]) Value() V { return e.value }

// Compressed 报告值是否以压缩形式存储。
func (e *Entry[V]) Compressed() bool { return e.packed != nil }

// CreatedAt 返回创建时间。
func (e *Entry[V]) CreatedAt() time.Time { return e.createdAt }

// LastAccessed 返回最后访问时间，不早于创建时间。
func (e *Entry[V]) LastAccessed() time.Time {
	return time.Unix(0, e.lastAccessed.Load())
}

// ExpiresAt 返回过期时间，第二个返回值为 false 表示不过期。
func (e *Entry[V]) ExpiresAt() (time.Time, bool) {
	return e.expiresAt, !e.expiresAt.IsZero()
}

// TTL 返回条目的生存时间配置，0 表示不过期。
func (e *Entry[V]) TTL() time.Duration { return e.ttl }

// AccessCount 返回成功读取次数。
func (e *Entry[V]) AccessCount() uint64 { return e.accessCount.Load() }

// Size 返回估算的字节数。
func (e *Entry[V]) Size() int64 { return e.size }

// SizeHint 与 Size 相同，以 int 返回。
func (e *Entry[V]) SizeHint() int { return int(e.size) }

// Metadata 读取一个元数据标签。
func (e *Entry[V]) Metadata(key string) (string, bool) {
	v, ok := e.metadata[key]
	return v, ok
}

// MetadataMap 返回元数据的副本。
func (e *Entry[V]) MetadataMap() map[string]string {
	out := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

// IsExpired 报告条目当前是否已过期。
func (e *Entry[V]) IsExpired() bool {
	return e.isExpiredAt(time.Now())
}

func (e *Entry[V]) isExpiredAt(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// access 记录一次成功读取，计数饱和而不溢出。
func (e *Entry[V]) access(now time.Time) {
	for {
		n := e.accessCount.Load()
		if n == math.MaxUint64 || e.accessCount.CompareAndSwap(n, n+1) {
			break
		}
	}
	e.touch(now)
}

func (e *Entry[V]) touch(now time.Time) {
	ts := now.UnixNano()
	if created := e.createdAt.UnixNano(); ts < created {
		ts = created
	}
	e.lastAccessed.Store(ts)
}

// updateValue 替换值并刷新访问时间，调用方需持有分片写锁。
func (e *Entry[V]) updateValue(value V, packed []byte, size int64, now time.Time) {
	e.value = value
	e.packed = packed
	e.size = size
	e.touch(now)
}

// refreshTTL 以最后访问时间为起点重新计算过期时间，调用方需持有分片写锁。
func (e *Entry[V]) refreshTTL(ttl time.Duration) {
	e.setTTL(ttl, e.LastAccessed())
}

// snapshot 复制条目供淘汰策略评分，元数据map只读共享。
func (e *Entry[V]) snapshot() *Entry[V] {
	c := &Entry[V]{
		value:     e.value,
		packed:    e.packed,
		createdAt: e.createdAt,
		expiresAt: e.expiresAt,
		ttl:       e.ttl,
		metadata:  e.metadata,
		size:      e.size,
		seq:       e.seq,
	}
	c.lastAccessed.Store(e.lastAccessed.Load())
	c.accessCount.Store(e.accessCount.Load())
	return c
}
