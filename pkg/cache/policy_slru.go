package cache

import (
	"container/list"
	"sort"
	"sync"
)

// slruItem 分段链表中的元素。
type slruItem[K comparable] struct {
	key       K
	protected bool
}

// SegmentedLRUStrategy 分段LRU。新条目进入试用段，试用段中的条目被命中后晋升到保护段，
// 保护段溢出时把其最久未用的成员降回试用段。淘汰先从试用段尾部开始，试用段为空时才动保护段。
type SegmentedLRUStrategy[K comparable, V any] struct {
	mu           sync.Mutex
	probationary *list.List
	protected    *list.List
	index        map[K]*list.Element

	probationaryCap int
	protectedCap    int
}

// NewSegmentedLRUStrategy 创建分段LRU策略
func NewSegmentedLRUStrategy[K comparable, V any](probationaryCap, protectedCap int) *SegmentedLRUStrategy[K, V] {
	if probationaryCap <= 0 {
		probationaryCap = defaultProbationaryCapacity
	}
	if protectedCap <= 0 {
		protectedCap = defaultProtectedCapacity
	}
	return &SegmentedLRUStrategy[K, V]{
		probationary:    list.New(),
		protected:       list.New(),
		index:           make(map[K]*list.Element),
		probationaryCap: probationaryCap,
		protectedCap:    protectedCap,
	}
}

func (*SegmentedLRUStrategy[K, V]) Policy() EvictionPolicy { return PolicySegmentedLRU }

// OnAdd 新写入或覆盖写入的键进入试用段头部。
func (s *SegmentedLRUStrategy[K, V]) OnAdd(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
	s.index[key] = s.probationary.PushFront(&slruItem[K]{key: key})
}

// OnAccess 命中试用段的键晋升到保护段，保护段内的键移到头部。
func (s *SegmentedLRUStrategy[K, V]) OnAccess(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.index[key]
	if !ok {
		s.index[key] = s.probationary.PushFront(&slruItem[K]{key: key})
		return
	}
	item := elem.Value.(*slruItem[K])
	if item.protected {
		s.protected.MoveToFront(elem)
		return
	}

	s.probationary.Remove(elem)
	item.protected = true
	s.index[key] = s.protected.PushFront(item)

	for s.protected.Len() > s.protectedCap {
		tail := s.protected.Back()
		demoted := s.protected.Remove(tail).(*slruItem[K])
		demoted.protected = false
		s.index[demoted.key] = s.probationary.PushFront(demoted)
	}
}

// OnRemove 从所在分段移除。
func (s *SegmentedLRUStrategy[K, V]) OnRemove(key K) {
	s.mu.Lock()
	s.removeLocked(key)
	s.mu.Unlock()
}

func (s *SegmentedLRUStrategy[K, V]) removeLocked(key K) {
	elem, ok := s.index[key]
	if !ok {
		return
	}
	if elem.Value.(*slruItem[K]).protected {
		s.protected.Remove(elem)
	} else {
		s.probationary.Remove(elem)
	}
	delete(s.index, key)
}

// SegmentLens 返回试用段和保护段的长度。
func (s *SegmentedLRUStrategy[K, V]) SegmentLens() (probationary, protected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probationary.Len(), s.protected.Len()
}

// IsProtected 报告键当前是否在保护段。
func (s *SegmentedLRUStrategy[K, V]) IsProtected(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.index[key]
	return ok && elem.Value.(*slruItem[K]).protected
}

// SelectForEviction 依次从试用段尾部、未登记的键（按最后访问时间）、保护段尾部选择。
// 只会选择快照中存在的键。
func (s *SegmentedLRUStrategy[K, V]) SelectForEviction(candidates []Candidate[K, V], target int) []K {
	if len(candidates) == 0 || target <= 0 {
		return nil
	}
	present := make(map[K]int, len(candidates))
	for i, c := range candidates {
		present[c.Key] = i
	}

	keys := make([]K, 0, target)
	take := func(key K) bool {
		if _, ok := present[key]; ok {
			keys = append(keys, key)
			delete(present, key)
		}
		return len(keys) < target
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for e := s.probationary.Back(); e != nil; e = e.Prev() {
		if !take(e.Value.(*slruItem[K]).key) {
			return keys
		}
	}

	var unknown []Candidate[K, V]
	for _, c := range candidates {
		if _, ok := s.index[c.Key]; !ok {
			unknown = append(unknown, c)
		}
	}
	sort.SliceStable(unknown, func(i, j int) bool {
		return unknown[i].Entry.lastAccessed.Load() < unknown[j].Entry.lastAccessed.Load()
	})
	for _, c := range unknown {
		if !take(c.Key) {
			return keys
		}
	}

	for e := s.protected.Back(); e != nil; e = e.Prev() {
		if !take(e.Value.(*slruItem[K]).key) {
			return keys
		}
	}
	return keys
}

// Capacities 返回试用段与保护段的容量。
func (s *SegmentedLRUStrategy[K, V]) Capacities() (probationary, protected int) {
	return s.probationaryCap, s.protectedCap
}
