package cache

import (
	"math"
	"sort"
	"sync"
	"time"
)

const (
	maxObservationHistory = 1000
	// 受保护的热点：一分钟内访问过且访问次数大于5
	hotKeyWindow      = time.Minute
	hotKeyMinAccesses = 5
	predictionMinHits = 3
)

// AdaptiveWeights 自适应评分中近因、频率、大小三项的权重。
type AdaptiveWeights struct {
	Recency   float64
	Frequency float64
	Size      float64
}

// DefaultAdaptiveWeights 未开启自适应模式时使用的静态权重。
var DefaultAdaptiveWeights = AdaptiveWeights{Recency: 0.4, Frequency: 0.4, Size: 0.2}

// Observation 一次性能观测样本。
type Observation struct {
	At         time.Time
	HitRate    float64
	Throughput float64
}

// AdaptiveStrategy 多因子评分淘汰。分数为保留价值，升序排列后最先淘汰分数最低者；
// 近期频繁访问的热点条目不会被选中。
type AdaptiveStrategy[K comparable, V any] struct {
	strategyClock

	adaptive   bool
	prediction bool

	mu      sync.RWMutex
	history []Observation
}

// NewAdaptiveStrategy 创建自适应策略。adaptive 开启时按历史命中率选择权重，
// prediction 开启时对访问间隔短的条目给予保护。
func NewAdaptiveStrategy[K comparable, V any](adaptive, prediction bool) *AdaptiveStrategy[K, V] {
	return &AdaptiveStrategy[K, V]{adaptive: adaptive, prediction: prediction}
}

func (*AdaptiveStrategy[K, V]) Policy() EvictionPolicy { return PolicyAdaptive }

// RecordObservation 追加一个样本，历史超过上限时丢弃最旧的样本。
func (a *AdaptiveStrategy[K, V]) RecordObservation(hitRate, throughput float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, Observation{At: a.now(), HitRate: hitRate, Throughput: throughput})
	if over := len(a.history) - maxObservationHistory; over > 0 {
		a.history = append(a.history[:0], a.history[over:]...)
	}
}

// History 返回观测历史的副本。
func (a *AdaptiveStrategy[K, V]) History() []Observation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Observation, len(a.history))
	copy(out, a.history)
	return out
}

// Weights 返回当前生效的权重。命中率低时近因权重升高。
func (a *AdaptiveStrategy[K, V]) Weights() AdaptiveWeights {
	if !a.adaptive {
		return DefaultAdaptiveWeights
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.history) == 0 {
		return DefaultAdaptiveWeights
	}
	var sum float64
	for _, o := range a.history {
		sum += o.HitRate
	}
	avg := sum / float64(len(a.history))
	switch {
	case avg > 0.8:
		return AdaptiveWeights{Recency: 0.3, Frequency: 0.5, Size: 0.2}
	case avg > 0.6:
		return AdaptiveWeights{Recency: 0.4, Frequency: 0.4, Size: 0.2}
	default:
		return AdaptiveWeights{Recency: 0.6, Frequency: 0.2, Size: 0.2}
	}
}

// adaptivePriorityWeight 权重越低越不容易被淘汰。
func adaptivePriorityWeight[V any](e *Entry[V]) float64 {
	p, _ := e.Metadata(MetadataPriority)
	switch p {
	case "high":
		return 0.3
	case "medium":
		return 0.6
	case "low":
		return 0.9
	}
	return 0.7
}

// predictionBoost 根据平均访问间隔估计近期再次访问的可能。
func predictionBoost[V any](e *Entry[V], now time.Time) float64 {
	n := e.AccessCount()
	if n <= predictionMinHits {
		return 0
	}
	interval := now.Sub(e.CreatedAt()).Seconds() / float64(n)
	switch {
	case interval < 60:
		return 0.8
	case interval < 3600:
		return 0.5
	default:
		return 0.1
	}
}

// evictionPressure 计算淘汰压力，越大越应淘汰。
func (a *AdaptiveStrategy[K, V]) evictionPressure(e *Entry[V], now, newest time.Time, maxCount uint64, w AdaptiveWeights) float64 {
	hoursIdle := newest.Sub(e.LastAccessed()).Hours()
	if hoursIdle < 0 {
		hoursIdle = 0
	}
	count := e.AccessCount()
	frequency := float64(maxCount - count)
	sizeKB := float64(e.Size()) / 1024

	secondsIdle := now.Sub(e.LastAccessed()).Seconds()
	if secondsIdle < 0 {
		secondsIdle = 0
	}
	pattern := secondsIdle
	if count > 0 {
		pattern = secondsIdle / float64(count)
	}
	cost := sizeKB * (1 + math.Log10(math.Max(pattern, 1)))

	base := hoursIdle*w.Recency + frequency*w.Frequency + sizeKB*w.Size
	pressure := base*adaptivePriorityWeight(e) + cost
	if a.prediction {
		pressure -= predictionBoost(e, now)
	}
	return pressure
}

func isHotEntry[V any](e *Entry[V], now time.Time) bool {
	return now.Sub(e.LastAccessed()) < hotKeyWindow && e.AccessCount() > hotKeyMinAccesses
}

// SelectForEviction 按保留价值升序选择，跳过热点条目，因此可能少于 target 个。
func (a *AdaptiveStrategy[K, V]) SelectForEviction(candidates []Candidate[K, V], target int) []K {
	if len(candidates) == 0 || target <= 0 {
		return nil
	}

	now := a.now()
	var newest time.Time
	var maxCount uint64
	for _, c := range candidates {
		if t := c.Entry.LastAccessed(); t.After(newest) {
			newest = t
		}
		if n := c.Entry.AccessCount(); n > maxCount {
			maxCount = n
		}
	}

	w := a.Weights()
	items := make([]scored, len(candidates))
	for i, c := range candidates {
		items[i] = scored{idx: i, score: -a.evictionPressure(c.Entry, now, newest, maxCount, w)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score < items[j].score
	})

	var keys []K
	for _, it := range items {
		if len(keys) >= target {
			break
		}
		c := candidates[it.idx]
		if isHotEntry(c.Entry, now) {
			continue
		}
		keys = append(keys, c.Key)
	}
	return keys
}
