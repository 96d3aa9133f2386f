package cache

import (
	"sync"
	"sync/atomic"
)

// ClockStrategy 时钟（二次机会）算法。指针位置跨调用保持，
// 引用位为真的条目被清零并跳过，为假的被选中。
type ClockStrategy[K comparable, V any] struct {
	hand atomic.Uint64

	mu   sync.Mutex
	bits map[uint64]bool
}

// NewClockStrategy 创建时钟策略
func NewClockStrategy[K comparable, V any]() *ClockStrategy[K, V] {
	return &ClockStrategy[K, V]{bits: make(map[uint64]bool)}
}

func (*ClockStrategy[K, V]) Policy() EvictionPolicy { return PolicyClock }

// OnAdd 新条目引用位为假。
func (c *ClockStrategy[K, V]) OnAdd(key K) {
	c.mu.Lock()
	c.bits[HashKey(key)] = false
	c.mu.Unlock()
}

// OnAccess 设置引用位。
func (c *ClockStrategy[K, V]) OnAccess(key K) {
	c.mu.Lock()
	c.bits[HashKey(key)] = true
	c.mu.Unlock()
}

// OnRemove 删除引用位。
func (c *ClockStrategy[K, V]) OnRemove(key K) {
	c.mu.Lock()
	delete(c.bits, HashKey(key))
	c.mu.Unlock()
}

// Hand 返回当前指针位置。
func (c *ClockStrategy[K, V]) Hand() int { return int(c.hand.Load()) }

// Referenced 报告键的引用位。
func (c *ClockStrategy[K, V]) Referenced(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bits[HashKey(key)]
}

// SelectForEviction 从指针位置开始环形扫描，选够 target 个或转满一圈后停止。
func (c *ClockStrategy[K, V]) SelectForEviction(candidates []Candidate[K, V], target int) []K {
	n := len(candidates)
	if n == 0 || target <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hand := int(c.hand.Load() % uint64(n))
	var keys []K
	for scanned := 0; scanned < n && len(keys) < target; scanned++ {
		cand := candidates[hand]
		h := HashKey(cand.Key)
		if c.bits[h] {
			c.bits[h] = false
		} else {
			keys = append(keys, cand.Key)
		}
		hand = (hand + 1) % n
	}
	c.hand.Store(uint64(hand))
	return keys
}
