package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"cachecore/pkg/logger"
)

// maxEvictionRounds 单次写入最多进行的选择轮数。
// 第二轮让时钟等策略在清除引用位之后完成选择，仍超限时接受暂时超容。
const maxEvictionRounds = 2

// memoryTargetRatio 内存超限淘汰的目标水位。
const memoryTargetRatio = 0.8

// Store 分片并发缓存。读操作只持有对应分片的读锁，访问计数用原子操作更新；
// 淘汰由 evictMu 串行化，选择与删除作为一个整体执行。
type Store[K comparable, V any] struct {
	name     string
	cfg      *CacheConfig
	shards   []*shard[K, V]
	strategy EvictionStrategy[K, V]
	observer AccessObserver[K]
	encoder  valueEncoder[V]

	stats   *Stats
	metrics *cacheMetrics
	log     *logrus.Entry
	now     func() time.Time

	seq     atomic.Uint64
	entries atomic.Int64
	bytes   atomic.Int64
	closed  atomic.Bool

	evictMu sync.Mutex

	obsMu      sync.Mutex
	obsAt      time.Time
	obsLookups uint64
}

// New 按配置创建缓存，淘汰策略由 NewStrategy 选择。
func New[K comparable, V any](cfg *CacheConfig, opts ...Option) (*Store[K, V], error) {
	if cfg == nil {
		cfg = DefaultCacheConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	normalized := cfg.normalize()
	strategy, err := NewStrategy[K, V](normalized)
	if err != nil {
		return nil, err
	}
	return newStore(normalized, strategy, opts...)
}

// NewWithStrategy 使用调用方提供的策略创建缓存，配置中的策略名只用于报告。
func NewWithStrategy[K comparable, V any](cfg *CacheConfig, strategy EvictionStrategy[K, V], opts ...Option) (*Store[K, V], error) {
	if cfg == nil {
		cfg = DefaultCacheConfig()
	}
	if strategy == nil {
		return nil, NewCacheError(ErrCodeConfigInvalid, "eviction strategy is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newStore(cfg.normalize(), strategy, opts...)
}

func newStore[K comparable, V any](cfg *CacheConfig, strategy EvictionStrategy[K, V], opts ...Option) (*Store[K, V], error) {
	o := storeOptions{name: "default", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.WithCache("cache", o.name)
	}

	s := &Store[K, V]{
		name:     o.name,
		cfg:      cfg,
		shards:   newShards[K, V](cfg.ShardCount),
		strategy: strategy,
		stats:    NewStats(),
		log:      o.log,
		now:      o.now,
		encoder: valueEncoder[V]{
			measure:   cfg.MaxMemoryMB > 0 || cfg.EvictionPolicy == PolicySizeBased || cfg.EvictionPolicy == PolicyAdaptive,
			threshold: int64(cfg.CompressionThresholdKB) * 1024,
		},
		obsAt: o.now(),
	}
	if observer, ok := strategy.(AccessObserver[K]); ok {
		s.observer = observer
	}
	if c, ok := strategy.(clockSetter); ok {
		c.setClock(o.now)
	}

	if cfg.EnableMetrics && o.registerer != nil {
		m, err := newCacheMetrics(o.registerer, o.name)
		if err != nil {
			return nil, WrapCacheError(ErrCodeConfigInvalid, "failed to register cache metrics", err).
				WithContext("cache", o.name)
		}
		s.metrics = m
	}

	s.log.WithFields(logrus.Fields{
		"policy":      strategy.Policy(),
		"max_entries": cfg.MaxEntries,
		"shards":      cfg.ShardCount,
	}).Debug("缓存已创建")
	return s, nil
}

func (s *Store[K, V]) shardFor(key K) *shard[K, V] {
	return s.shards[HashKey(key)%uint64(len(s.shards))]
}

// Name 返回缓存名称。
func (s *Store[K, V]) Name() string { return s.name }

// Policy 返回当前淘汰策略。
func (s *Store[K, V]) Policy() EvictionPolicy { return s.strategy.Policy() }

// Config 返回配置副本。
func (s *Store[K, V]) Config() CacheConfig { return *s.cfg.normalize() }

// Get 读取值。命中时更新访问计数与时间；过期条目在此处惰性删除。
func (s *Store[K, V]) Get(key K) (V, bool) {
	now := s.now()
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.items[key]
	if ok && !e.isExpiredAt(now) {
		e.access(now)
		value, packed := e.value, e.packed
		sh.mu.RUnlock()

		if packed != nil {
			decoded, err := s.encoder.decode(packed)
			if err != nil {
				s.log.WithError(err).Warn("压缩值解码失败，删除条目")
				s.removeEntry(key, e)
				s.recordMiss()
				var zero V
				return zero, false
			}
			value = decoded
		}
		if s.observer != nil {
			s.observer.OnAccess(key)
		}
		s.stats.RecordHit()
		s.metrics.recordHit()
		return cloneValue(value), true
	}
	sh.mu.RUnlock()

	if ok {
		s.expireEntry(key, e, now)
	}
	s.recordMiss()
	var zero V
	return zero, false
}

// RequireGet 与 Get 相同，但键不存在时返回 KEY_NOT_FOUND 错误。
func (s *Store[K, V]) RequireGet(key K) (V, error) {
	v, ok := s.Get(key)
	if !ok {
		return v, NewCacheError(ErrCodeKeyNotFound, "cache entry not found").
			WithContext("cache", s.name).
			WithContext("key", keyString(key))
	}
	return v, nil
}

// Peek 读取值但不更新访问信息和统计。
func (s *Store[K, V]) Peek(key K) (V, bool) {
	var zero V
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.items[key]
	if !ok || e.isExpiredAt(s.now()) {
		sh.mu.RUnlock()
		return zero, false
	}
	value, packed := e.value, e.packed
	sh.mu.RUnlock()

	if packed != nil {
		decoded, err := s.encoder.decode(packed)
		if err != nil {
			return zero, false
		}
		value = decoded
	}
	return cloneValue(value), true
}

// Insert 写入值，覆盖已有条目并重置其访问信息。
// ttl 为 0 时使用默认TTL，NoExpiration 表示永不过期。写入后超出容量时同步淘汰。
func (s *Store[K, V]) Insert(key K, value V, ttl time.Duration, opts ...InsertOption) {
	if s.closed.Load() {
		s.log.Debug("缓存已关闭，忽略写入")
		return
	}

	var o insertOptions
	for _, opt := range opts {
		opt(&o)
	}

	switch {
	case ttl == 0:
		ttl = s.cfg.DefaultTTL
	case ttl < 0:
		ttl = 0
	}

	now := s.now()
	entry := s.newEntry(value, ttl, o.metadata, now)

	sh := s.shardFor(key)
	sh.mu.Lock()
	if s.closed.Load() {
		sh.mu.Unlock()
		return
	}
	old, existed := sh.items[key]
	sh.items[key] = entry
	if existed {
		s.bytes.Add(entry.size - old.size)
	} else {
		s.entries.Add(1)
		s.bytes.Add(entry.size)
	}
	sh.mu.Unlock()

	if s.observer != nil {
		s.observer.OnAdd(key)
	}
	s.stats.RecordSet()
	s.metrics.recordSet()

	s.enforceCapacity()
	s.updateGauges()
}

func (s *Store[K, V]) newEntry(value V, ttl time.Duration, metadata map[string]string, now time.Time) *Entry[V] {
	enc, err := s.encoder.encode(value, metadata)
	if err != nil {
		s.log.WithError(err).Warn("值无法序列化，使用估算大小")
	}

	entry := NewEntry(value, ttl, now)
	if enc.packed != nil {
		var zero V
		entry.value = zero
		entry.packed = enc.packed
	}
	entry.metadata = metadata
	entry.size = enc.size
	entry.seq = s.seq.Add(1)
	return entry
}

// Update 替换已有条目的值，保留TTL、访问计数和元数据。键不存在或已过期时返回 false。
func (s *Store[K, V]) Update(key K, value V) bool {
	now := s.now()
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.items[key]
	var metadata map[string]string
	if ok {
		metadata = e.metadata
	}
	sh.mu.RUnlock()
	if !ok {
		return false
	}

	enc, err := s.encoder.encode(value, metadata)
	if err != nil {
		s.log.WithError(err).Warn("值无法序列化，使用估算大小")
	}

	sh.mu.Lock()
	current, ok := sh.items[key]
	if !ok || current != e || current.isExpiredAt(now) {
		sh.mu.Unlock()
		return false
	}
	delta := enc.size - current.size
	var stored V
	if enc.packed == nil {
		stored = value
	}
	current.updateValue(stored, enc.packed, enc.size, now)
	s.bytes.Add(delta)
	sh.mu.Unlock()

	s.stats.RecordSet()
	s.metrics.recordSet()
	if delta > 0 {
		s.enforceCapacity()
	}
	s.updateGauges()
	return true
}

// RefreshTTL 以最后访问时间为起点重设过期时间，ttl<=0 清除过期。
func (s *Store[K, V]) RefreshTTL(key K, ttl time.Duration) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[key]
	if !ok || e.isExpiredAt(s.now()) {
		return false
	}
	e.refreshTTL(ttl)
	return true
}

// Remove 删除条目并返回旧值。
func (s *Store[K, V]) Remove(key K) (V, bool) {
	var zero V
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.items[key]
	if !ok {
		sh.mu.Unlock()
		return zero, false
	}
	delete(sh.items, key)
	s.entries.Add(-1)
	s.bytes.Add(-e.size)
	sh.mu.Unlock()

	if s.observer != nil {
		s.observer.OnRemove(key)
	}
	s.stats.RecordDelete()
	s.metrics.recordDelete()
	s.updateGauges()

	if e.packed != nil {
		v, err := s.encoder.decode(e.packed)
		if err != nil {
			return zero, false
		}
		return v, true
	}
	return e.value, true
}

// Contains 判断键是否存在且未过期，不更新任何访问信息。
func (s *Store[K, V]) Contains(key K) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.items[key]
	return ok && !e.isExpiredAt(s.now())
}

// Size 返回条目数，包括尚未清理的过期条目。
func (s *Store[K, V]) Size() int {
	return int(s.entries.Load())
}

// MemoryUsage 返回条目估算字节数之和。
func (s *Store[K, V]) MemoryUsage() int64 {
	return s.bytes.Load()
}

// Keys 返回所有未过期的键，顺序不固定。
func (s *Store[K, V]) Keys() []K {
	now := s.now()
	keys := make([]K, 0, s.Size())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.items {
			if !e.isExpiredAt(now) {
				keys = append(keys, k)
			}
		}
		sh.mu.RUnlock()
	}
	return keys
}

// rangeItem 是持锁期间复制出的条目值，解码在锁外进行
type rangeItem[K comparable, V any] struct {
	key    K
	value  V
	packed []byte
}

// Range 遍历未过期条目，fn 返回 false 时停止。回调在锁外执行，可以调用缓存的其他方法。
func (s *Store[K, V]) Range(fn func(key K, value V) bool) {
	now := s.now()
	for _, sh := range s.shards {
		sh.mu.RLock()
		items := make([]rangeItem[K, V], 0, len(sh.items))
		for k, e := range sh.items {
			if !e.isExpiredAt(now) {
				items = append(items, rangeItem[K, V]{key: k, value: e.value, packed: e.packed})
			}
		}
		sh.mu.RUnlock()

		for _, it := range items {
			value := it.value
			if it.packed != nil {
				decoded, err := s.encoder.decode(it.packed)
				if err != nil {
					continue
				}
				value = decoded
			}
			if !fn(it.key, cloneValue(value)) {
				return
			}
		}
	}
}

// Stats 返回统计快照，包含当前条目数与内存估算。
func (s *Store[K, V]) Stats() StatsSnapshot {
	snap := s.stats.Snapshot()
	snap.TotalEntries = s.Size()
	snap.MemoryUsageBytes = s.MemoryUsage()
	return snap
}

// ResetStats 清零统计计数。
func (s *Store[K, V]) ResetStats() {
	s.stats.Reset()
	s.obsMu.Lock()
	s.obsAt = s.now()
	s.obsLookups = 0
	s.obsMu.Unlock()
}

// CleanupExpired 删除全部过期条目，返回删除数量。与淘汰策略无关。
func (s *Store[K, V]) CleanupExpired() int {
	now := s.now()
	var removed []K
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.items {
			if e.isExpiredAt(now) {
				delete(sh.items, k)
				s.entries.Add(-1)
				s.bytes.Add(-e.size)
				removed = append(removed, k)
			}
		}
		sh.mu.Unlock()
	}

	if s.observer != nil {
		for _, k := range removed {
			s.observer.OnRemove(k)
		}
	}
	n := len(removed)
	if n > 0 {
		s.stats.RecordExpirations(n)
		s.metrics.recordExpirations(n)
		s.updateGauges()
		s.log.WithField("expired", n).Debug("过期条目已清理")
	}
	return n
}

// Clear 删除所有条目，统计计数保留。
func (s *Store[K, V]) Clear() {
	var removed []K
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.items {
			s.entries.Add(-1)
			s.bytes.Add(-e.size)
			if s.observer != nil {
				removed = append(removed, k)
			}
		}
		sh.items = make(map[K]*Entry[V])
		sh.mu.Unlock()
	}

	for _, k := range removed {
		s.observer.OnRemove(k)
	}
	s.updateGauges()
}

// RecordObservation 以当前命中率和自上次观测以来的查询吞吐量（次/秒）
// 向支持观测的策略（自适应）提交一个样本，其余策略忽略。
func (s *Store[K, V]) RecordObservation() {
	recorder, ok := s.strategy.(ObservationRecorder)
	if !ok {
		return
	}
	snap := s.stats.Snapshot()
	lookups := snap.TotalHits + snap.TotalMisses
	now := s.now()

	s.obsMu.Lock()
	elapsed := now.Sub(s.obsAt).Seconds()
	delta := lookups - s.obsLookups
	if lookups < s.obsLookups {
		delta = lookups
	}
	s.obsAt = now
	s.obsLookups = lookups
	s.obsMu.Unlock()

	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(delta) / elapsed
	}
	recorder.RecordObservation(snap.HitRatio, throughput)
}

// Close 注销指标并清空条目，之后的写入被忽略。
func (s *Store[K, V]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.Clear()
	s.metrics.unregister()
	s.log.Debug("缓存已关闭")
	return nil
}

func (s *Store[K, V]) recordMiss() {
	s.stats.RecordMiss()
	s.metrics.recordMiss()
}

// expireEntry 删除仍是同一实例且已过期的条目。
func (s *Store[K, V]) expireEntry(key K, e *Entry[V], now time.Time) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	current, ok := sh.items[key]
	if !ok || current != e || !current.isExpiredAt(now) {
		sh.mu.Unlock()
		return
	}
	delete(sh.items, key)
	s.entries.Add(-1)
	s.bytes.Add(-e.size)
	sh.mu.Unlock()

	if s.observer != nil {
		s.observer.OnRemove(key)
	}
	s.stats.RecordExpirations(1)
	s.metrics.recordExpirations(1)
	s.updateGauges()
}

// removeEntry 删除仍是同一实例的条目，不计入任何统计。
func (s *Store[K, V]) removeEntry(key K, e *Entry[V]) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	current, ok := sh.items[key]
	if !ok || current != e {
		sh.mu.Unlock()
		return
	}
	delete(sh.items, key)
	s.entries.Add(-1)
	s.bytes.Add(-e.size)
	sh.mu.Unlock()

	if s.observer != nil {
		s.observer.OnRemove(key)
	}
	s.updateGauges()
}

// evictionTarget 计算需要淘汰的条目数。
// 条目数超限时为超出部分；内存超限时按平均条目大小估算回落到目标水位所需的数量，
// SizeBased 策略自行按内存停止，因此给出全部条目数。
func (s *Store[K, V]) evictionTarget() int {
	n := s.Size()
	target := 0
	if !s.cfg.Unbounded() && n > s.cfg.MaxEntries {
		target = n - s.cfg.MaxEntries
	}

	budget := s.cfg.MaxMemoryBytes()
	used := s.bytes.Load()
	if budget > 0 && used > budget && n > 0 {
		need := n
		if s.strategy.Policy() != PolicySizeBased {
			avg := used / int64(n)
			if avg < 1 {
				avg = 1
			}
			excess := used - int64(float64(budget)*memoryTargetRatio)
			need = int((excess + avg - 1) / avg)
			if need < 1 {
				need = 1
			}
		}
		if need > target {
			target = need
		}
	}

	if target > n {
		target = n
	}
	return target
}

// enforceCapacity 超出容量时执行淘汰。策略无法选出候选时接受暂时超容。
func (s *Store[K, V]) enforceCapacity() {
	if s.evictionTarget() <= 0 {
		return
	}

	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	total := 0
	for round := 0; round < maxEvictionRounds; round++ {
		target := s.evictionTarget()
		if target <= 0 {
			break
		}

		candidates := s.snapshot()
		if target > len(candidates) {
			target = len(candidates)
		}
		keys := s.strategy.SelectForEviction(candidates, target)
		if len(keys) > target {
			keys = keys[:target]
		}
		total += s.evictKeys(keys, candidates)
	}

	if total > 0 {
		s.stats.RecordEvictions(total)
		s.metrics.recordEvictions(total)
		s.log.WithFields(logrus.Fields{
			"evicted": total,
			"policy":  s.strategy.Policy(),
			"size":    s.Size(),
		}).Debug("淘汰完成")
	} else if s.evictionTarget() > 0 {
		s.log.WithField("size", s.Size()).Debug("策略未选出淘汰候选，暂时超出容量")
	}
}

// snapshot 复制所有条目，按插入顺序排列。
func (s *Store[K, V]) snapshot() []Candidate[K, V] {
	candidates := make([]Candidate[K, V], 0, s.Size())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.items {
			candidates = append(candidates, Candidate[K, V]{Key: k, Entry: e.snapshot()})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Entry.seq < candidates[j].Entry.seq
	})
	return candidates
}

// evictKeys 删除选中的键。快照之后被覆盖写入的条目序号不同，不会被删除。
func (s *Store[K, V]) evictKeys(keys []K, candidates []Candidate[K, V]) int {
	if len(keys) == 0 {
		return 0
	}
	seqs := make(map[K]uint64, len(candidates))
	for _, c := range candidates {
		seqs[c.Key] = c.Entry.seq
	}

	removed := 0
	for _, key := range keys {
		seq, ok := seqs[key]
		if !ok {
			continue
		}
		delete(seqs, key)

		sh := s.shardFor(key)
		sh.mu.Lock()
		e, ok := sh.items[key]
		if !ok || e.seq != seq {
			sh.mu.Unlock()
			continue
		}
		delete(sh.items, key)
		s.entries.Add(-1)
		s.bytes.Add(-e.size)
		sh.mu.Unlock()

		if s.observer != nil {
			s.observer.OnRemove(key)
		}
		removed++
	}
	return removed
}

func (s *Store[K, V]) updateGauges() {
	s.metrics.updateSize(s.Size(), s.MemoryUsage())
}

func cloneValue[V any](v V) V {
	if c, ok := any(v).(Cloner[V]); ok {
		return c.Clone()
	}
	return v
}

var _ Cache[string, any] = (*Store[string, any])(nil)
