package cache

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Stats 缓存运行计数器，由每个缓存实例持有。计数只增不减，仅 Reset 会清零。
type Stats struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	sets        atomic.Uint64
	deletes     atomic.Uint64
	expirations atomic.Uint64

	mu        sync.RWMutex
	createdAt time.Time
}

// NewStats 创建统计实例。
func NewStats() *Stats {
	return &Stats{createdAt: time.Now()}
}

// RecordHit 记录一次命中。
func (s *Stats) RecordHit() { s.hits.Add(1) }

// RecordMiss 记录一次未命中。
func (s *Stats) RecordMiss() { s.misses.Add(1) }

// RecordSet 记录一次写入。
func (s *Stats) RecordSet() { s.sets.Add(1) }

// RecordDelete 记录一次显式删除。
func (s *Stats) RecordDelete() { s.deletes.Add(1) }

// RecordEvictions 记录策略触发的淘汰数。
func (s *Stats) RecordEvictions(n int) {
	if n > 0 {
		s.evictions.Add(uint64(n))
	}
}

// RecordExpirations 记录TTL过期清理数。
func (s *Stats) RecordExpirations(n int) {
	if n > 0 {
		s.expirations.Add(uint64(n))
	}
}

// Reset 清零所有计数并重置起始时间。
func (s *Stats) Reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.evictions.Store(0)
	s.sets.Store(0)
	s.deletes.Store(0)
	s.expirations.Store(0)

	s.mu.Lock()
	s.createdAt = time.Now()
	s.mu.Unlock()
}

// HitRatio 返回 hits/(hits+misses)，两者都为0时返回0。
func (s *Stats) HitRatio() float64 {
	return hitRatio(s.hits.Load(), s.misses.Load())
}

func hitRatio(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total)
}

// Snapshot 返回当前计数的快照。
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	createdAt := s.createdAt
	s.mu.RUnlock()

	snap := StatsSnapshot{
		TotalHits:        s.hits.Load(),
		TotalMisses:      s.misses.Load(),
		TotalEvictions:   s.evictions.Load(),
		TotalSets:        s.sets.Load(),
		TotalDeletes:     s.deletes.Load(),
		TotalExpirations: s.expirations.Load(),
		CreatedAt:        createdAt,
		Uptime:           time.Since(createdAt),
	}
	snap.HitRatio = hitRatio(snap.TotalHits, snap.TotalMisses)
	return snap
}

// StatsSnapshot 某一时刻的统计信息。
type StatsSnapshot struct {
	TotalEntries     int           `json:"total_entries"`      // 当前条目数
	TotalHits        uint64        `json:"total_hits"`         // 命中次数
	TotalMisses      uint64        `json:"total_misses"`       // 未命中次数
	TotalEvictions   uint64        `json:"total_evictions"`    // 策略淘汰次数
	TotalSets        uint64        `json:"total_sets"`         // 写入次数
	TotalDeletes     uint64        `json:"total_deletes"`      // 显式删除次数
	TotalExpirations uint64        `json:"total_expirations"`  // 过期清理次数
	HitRatio         float64       `json:"hit_ratio"`          // 命中率
	MemoryUsageBytes int64         `json:"memory_usage_bytes"` // 估算的内存占用
	Uptime           time.Duration `json:"uptime"`             // 统计起始至今
	CreatedAt        time.Time     `json:"created_at"`         // 统计起始时间
}

// Merge 将另一个快照累加到当前快照，用于全局汇总。
func (s StatsSnapshot) Merge(other StatsSnapshot) StatsSnapshot {
	out := s
	out.TotalEntries += other.TotalEntries
	out.TotalHits += other.TotalHits
	out.TotalMisses += other.TotalMisses
	out.TotalEvictions += other.TotalEvictions
	out.TotalSets += other.TotalSets
	out.TotalDeletes += other.TotalDeletes
	out.TotalExpirations += other.TotalExpirations
	out.MemoryUsageBytes += other.MemoryUsageBytes
	if out.CreatedAt.IsZero() || (!other.CreatedAt.IsZero() && other.CreatedAt.Before(out.CreatedAt)) {
		out.CreatedAt = other.CreatedAt
		out.Uptime = other.Uptime
	}
	out.HitRatio = hitRatio(out.TotalHits, out.TotalMisses)
	return out
}

// EfficiencyScore 综合命中率与淘汰压力的效率评分，范围 [0,1]。
// 0.7*命中率 + 0.3*(1 - 淘汰数/写入数)。
func (s StatsSnapshot) EfficiencyScore() float64 {
	retention := 1.0
	if s.TotalSets > 0 {
		ratio := float64(s.TotalEvictions) / float64(s.TotalSets)
		if ratio > 1 {
			ratio = 1
		}
		retention = 1 - ratio
	}
	return s.HitRatio*0.7 + retention*0.3
}

// Report 生成可读的性能报告。
func (s StatsSnapshot) Report(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cache Performance Report for '%s'\n", name)
	b.WriteString(strings.Repeat("=", 40))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Entries: %d\n", s.TotalEntries)
	fmt.Fprintf(&b, "Lookups: %d (hits %d, misses %d)\n", s.TotalHits+s.TotalMisses, s.TotalHits, s.TotalMisses)
	fmt.Fprintf(&b, "Hit Rate: %.2f%%\n", s.HitRatio*100)
	fmt.Fprintf(&b, "Efficiency Score: %.3f\n", s.EfficiencyScore())
	fmt.Fprintf(&b, "Sets: %d, Deletes: %d\n", s.TotalSets, s.TotalDeletes)
	fmt.Fprintf(&b, "Evictions: %d, Expirations: %d\n", s.TotalEvictions, s.TotalExpirations)
	fmt.Fprintf(&b, "Memory Usage: %.2fMB\n", float64(s.MemoryUsageBytes)/(1024*1024))
	fmt.Fprintf(&b, "Uptime: %s\n", s.Uptime.Truncate(time.Second))
	return b.String()
}
