package cache

import (
	"math"
	"sort"
	"sync"
	"time"
)

// windowSample 窗口中的一次访问记录。
type windowSample struct {
	at   int64 // UnixNano
	hash uint64
}

// WTinyLFUStrategy 窗口TinyLFU。最近的访问先进入定长FIFO窗口，
// 被挤出窗口时只有频率已超过1的键才晋升到主频率表，其余丢弃。
// 评分本身也会记录一次访问，频率表由策略自己的锁保护。
type WTinyLFUStrategy[K comparable, V any] struct {
	strategyClock

	mu         sync.Mutex
	windowSize int
	window     []windowSample // 环形缓冲
	head       int
	length     int
	inWindow   map[uint64]uint32
	freq       map[uint64]uint8

	samples        uint64
	resetThreshold uint64
}

// NewWTinyLFUStrategy 创建策略，windowSize<=0 时使用默认窗口大小。
func NewWTinyLFUStrategy[K comparable, V any](windowSize int) *WTinyLFUStrategy[K, V] {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &WTinyLFUStrategy[K, V]{
		windowSize:     windowSize,
		window:         make([]windowSample, windowSize),
		inWindow:       make(map[uint64]uint32),
		freq:           make(map[uint64]uint8),
		resetThreshold: uint64(windowSize) * 10,
	}
}

func (*WTinyLFUStrategy[K, V]) Policy() EvictionPolicy { return PolicyWTinyLFU }

// OnAdd 写入计为一次访问。
func (w *WTinyLFUStrategy[K, V]) OnAdd(key K) { w.Record(key) }

// OnAccess 读取命中计为一次访问。
func (w *WTinyLFUStrategy[K, V]) OnAccess(key K) { w.Record(key) }

// OnRemove 频率信息在键删除后保留，重新写入时仍然有效。
func (w *WTinyLFUStrategy[K, V]) OnRemove(K) {}

// Record 记录一次访问。
func (w *WTinyLFUStrategy[K, V]) Record(key K) {
	w.mu.Lock()
	w.recordLocked(HashKey(key), w.now())
	w.mu.Unlock()
}

// Frequency 返回键的估计频率：主表计数加窗口内出现次数，上限255。
func (w *WTinyLFUStrategy[K, V]) Frequency(key K) uint8 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frequencyLocked(HashKey(key))
}

func (w *WTinyLFUStrategy[K, V]) frequencyLocked(hash uint64) uint8 {
	total := uint32(w.freq[hash]) + w.inWindow[hash]
	if total > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(total)
}

func (w *WTinyLFUStrategy[K, V]) recordLocked(hash uint64, now time.Time) {
	if w.length == w.windowSize {
		oldest := w.window[w.head]
		w.head = (w.head + 1) % w.windowSize
		w.length--
		w.promoteLocked(oldest.hash)
	}
	tail := (w.head + w.length) % w.windowSize
	w.window[tail] = windowSample{at: now.UnixNano(), hash: hash}
	w.length++
	w.inWindow[hash]++

	w.samples++
	if w.samples >= w.resetThreshold {
		w.ageLocked()
	}
}

// promoteLocked 处理被挤出窗口的访问。
func (w *WTinyLFUStrategy[K, V]) promoteLocked(hash uint64) {
	estimate := w.frequencyLocked(hash)
	if n := w.inWindow[hash]; n <= 1 {
		delete(w.inWindow, hash)
	} else {
		w.inWindow[hash] = n - 1
	}
	if estimate > 1 {
		if f := w.freq[hash]; f < math.MaxUint8 {
			w.freq[hash] = f + 1
		}
	}
}

// ageLocked 主表计数减半，清除归零的项，防止历史热点长期占据。
func (w *WTinyLFUStrategy[K, V]) ageLocked() {
	for h, f := range w.freq {
		if f >>= 1; f == 0 {
			delete(w.freq, h)
		} else {
			w.freq[h] = f
		}
	}
	w.samples = 0
}

// SelectForEviction 分数 = 0.7*min(频率,100)/100 + 0.3*近因，升序选择。
func (w *WTinyLFUStrategy[K, V]) SelectForEviction(candidates []Candidate[K, V], target int) []K {
	if len(candidates) == 0 || target <= 0 {
		return nil
	}

	now := w.now()
	items := make([]scored, len(candidates))

	w.mu.Lock()
	for i, c := range candidates {
		hash := HashKey(c.Key)
		frequency := w.frequencyLocked(hash)
		w.recordLocked(hash, now)

		idle := math.Abs(now.Sub(c.Entry.LastAccessed()).Seconds())
		recency := 1 / math.Max(idle, 1)
		items[i] = scored{idx: i, score: 0.7*math.Min(float64(frequency), 100)/100 + 0.3*recency}
	}
	w.mu.Unlock()

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score < items[j].score
	})

	if target > len(items) {
		target = len(items)
	}
	keys := make([]K, 0, target)
	for _, it := range items[:target] {
		keys = append(keys, candidates[it.idx].Key)
	}
	return keys
}
