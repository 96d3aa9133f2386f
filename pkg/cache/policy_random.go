package cache

import (
	"sync"
	"time"
)

// LCG 参数
const (
	lcgMultiplier uint64 = 1103515245
	lcgIncrement  uint64 = 12345
)

// RandomStrategy 随机淘汰。用线性同余序列做 Fisher-Yates 洗牌，不要求密码学随机。
type RandomStrategy[K comparable, V any] struct {
	mu   sync.Mutex
	seed uint64
}

// NewRandomStrategy 以当前时间为种子创建随机策略。
func NewRandomStrategy[K comparable, V any]() *RandomStrategy[K, V] {
	return NewRandomStrategyWithSeed[K, V](uint64(time.Now().UnixNano()))
}

// NewRandomStrategyWithSeed 使用固定种子，结果可复现。
func NewRandomStrategyWithSeed[K comparable, V any](seed uint64) *RandomStrategy[K, V] {
	return &RandomStrategy[K, V]{seed: seed}
}

func (*RandomStrategy[K, V]) Policy() EvictionPolicy { return PolicyRandom }

// SelectForEviction 洗牌后返回前 target 个键。
func (r *RandomStrategy[K, V]) SelectForEviction(candidates []Candidate[K, V], target int) []K {
	if len(candidates) == 0 || target <= 0 {
		return nil
	}

	indices := make([]int, len(candidates))
	for i := range indices {
		indices[i] = i
	}

	r.mu.Lock()
	for i := len(indices) - 1; i > 0; i-- {
		r.seed = r.seed*lcgMultiplier + lcgIncrement
		// 低位周期短，取高位
		j := int((r.seed >> 16) % uint64(i+1))
		indices[i], indices[j] = indices[j], indices[i]
	}
	r.mu.Unlock()

	if target > len(indices) {
		target = len(indices)
	}
	keys := make([]K, 0, target)
	for _, idx := range indices[:target] {
		keys = append(keys, candidates[idx].Key)
	}
	return keys
}
