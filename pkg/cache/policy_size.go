package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPriorityWeights SizeBased 策略默认的 priority 权重，未列出的标签权重为 1.0。
func DefaultPriorityWeights() map[string]float64 {
	return map[string]float64{
		"lsp-analysis":    0.3,
		"ai-inference":    0.7,
		"semantic-tokens": 0.2,
		"diagnostics":     0.5,
		"completion":      0.4,
	}
}

// SizeBasedStrategy 按内存占用淘汰。总占用未超出预算时不淘汰，
// 超出时按分数从高到低选择，直到预计占用回落到预算的80%或达到目标数量。
type SizeBasedStrategy[K comparable, V any] struct {
	strategyClock

	maxMemory     int64
	currentMemory atomic.Int64

	mu      sync.RWMutex
	weights map[string]float64
}

// NewSizeBasedStrategy 创建策略，weights 覆盖默认权重表中的同名项。
func NewSizeBasedStrategy[K comparable, V any](maxMemoryBytes int64, weights map[string]float64) *SizeBasedStrategy[K, V] {
	table := DefaultPriorityWeights()
	for k, v := range weights {
		table[k] = v
	}
	return &SizeBasedStrategy[K, V]{maxMemory: maxMemoryBytes, weights: table}
}

func (*SizeBasedStrategy[K, V]) Policy() EvictionPolicy { return PolicySizeBased }

// CurrentMemory 最近一次选择时统计到的总占用。
func (s *SizeBasedStrategy[K, V]) CurrentMemory() int64 { return s.currentMemory.Load() }

// MaxMemory 返回内存预算（字节）。
func (s *SizeBasedStrategy[K, V]) MaxMemory() int64 { return s.maxMemory }

// SetPriorityWeight 设置一个 priority 标签的权重。
func (s *SizeBasedStrategy[K, V]) SetPriorityWeight(priority string, weight float64) {
	s.mu.Lock()
	s.weights[priority] = weight
	s.mu.Unlock()
}

func (s *SizeBasedStrategy[K, V]) priorityWeight(e *Entry[V]) float64 {
	p, ok := e.Metadata(MetadataPriority)
	if !ok {
		return 1.0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.weights[p]; ok {
		return w
	}
	return 1.0
}

// score 分数越高越先淘汰。
func (s *SizeBasedStrategy[K, V]) score(e *Entry[V], now time.Time) float64 {
	sizeFraction := float64(e.Size()) / float64(s.maxMemory)
	if sizeFraction > 1 {
		sizeFraction = 1
	}
	freshness := now.Sub(e.LastAccessed()).Seconds()
	if freshness < 0 {
		freshness = 0
	}
	usage := 2.0
	if n := e.AccessCount(); n > 0 {
		usage = 1 / (float64(n) + 1)
	}
	return 0.4*sizeFraction + 0.3*freshness*s.priorityWeight(e) + 0.3*usage
}

// SelectForEviction 返回需要淘汰的键。
func (s *SizeBasedStrategy[K, V]) SelectForEviction(candidates []Candidate[K, V], target int) []K {
	if len(candidates) == 0 || target <= 0 {
		return nil
	}

	var current int64
	for _, c := range candidates {
		current += c.Entry.Size()
	}
	s.currentMemory.Store(current)
	if current <= s.maxMemory {
		return nil
	}

	now := s.now()
	items := make([]scored, len(candidates))
	for i, c := range candidates {
		items[i] = scored{idx: i, score: s.score(c.Entry, now), size: c.Entry.Size()}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].size > items[j].size
	})

	goal := int64(float64(s.maxMemory) * memoryTargetRatio)
	running := current
	var keys []K
	for _, it := range items {
		if len(keys) >= target || running <= goal {
			break
		}
		running -= it.size
		keys = append(keys, candidates[it.idx].Key)
	}
	return keys
}
