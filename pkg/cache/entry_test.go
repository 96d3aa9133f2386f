package cache

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntry_NewEntry(t *testing.T) {
	now := time.Now()

	e := NewEntry("v", time.Minute, now)
	expires, ok := e.ExpiresAt()
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), expires)
	assert.Equal(t, time.Minute, e.TTL())
	assert.Equal(t, uint64(0), e.AccessCount())
	assert.Equal(t, now.UnixNano(), e.LastAccessed().UnixNano())

	// ttl<=0 不过期
	e = NewEntry("v", 0, now)
	_, ok = e.ExpiresAt()
	assert.False(t, ok)
	assert.False(t, e.isExpiredAt(now.Add(100*time.Hour)))
}

func TestEntry_IsExpired(t *testing.T) {
	now := time.Now()
	e := NewEntry(1, time.Second, now)

	assert.False(t, e.isExpiredAt(now))
	// 恰好到期时刻仍然有效
	assert.False(t, e.isExpiredAt(now.Add(time.Second)))
	assert.True(t, e.isExpiredAt(now.Add(time.Second+time.Nanosecond)))
}

func TestEntry_Access(t *testing.T) {
	now := time.Now()
	e := NewEntry("v", 0, now)

	e.access(now.Add(time.Second))
	e.access(now.Add(2 * time.Second))
	assert.Equal(t, uint64(2), e.AccessCount())
	assert.Equal(t, now.Add(2*time.Second).UnixNano(), e.LastAccessed().UnixNano())

	// 访问时间不早于创建时间
	e.access(now.Add(-time.Hour))
	assert.Equal(t, now.UnixNano(), e.LastAccessed().UnixNano())
}

func TestEntry_AccessCountSaturates(t *testing.T) {
	e := NewEntry("v", 0, time.Now())
	e.accessCount.Store(math.MaxUint64)
	e.access(time.Now())
	assert.Equal(t, uint64(math.MaxUint64), e.AccessCount())
}

func TestEntry_RefreshTTL(t *testing.T) {
	now := time.Now()
	e := NewEntry("v", time.Second, now)
	e.access(now.Add(10 * time.Second))

	e.refreshTTL(time.Minute)
	expires, ok := e.ExpiresAt()
	assert.True(t, ok)
	assert.Equal(t, now.Add(10*time.Second+time.Minute).UnixNano(), expires.UnixNano())

	e.refreshTTL(0)
	_, ok = e.ExpiresAt()
	assert.False(t, ok)
}

func TestEntry_UpdateValue(t *testing.T) {
	now := time.Now()
	e := NewEntry("old", time.Minute, now)
	e.access(now)

	e.updateValue("new", nil, 42, now.Add(time.Second))
	assert.Equal(t, "new", e.Value())
	assert.Equal(t, int64(42), e.Size())
	assert.Equal(t, 42, e.SizeHint())
	assert.Equal(t, uint64(1), e.AccessCount())
	assert.Equal(t, time.Minute, e.TTL())
}

func TestEntry_MetadataIsCopied(t *testing.T) {
	e := NewEntry("v", 0, time.Now())
	e.metadata = map[string]string{"priority": "high"}

	m := e.MetadataMap()
	m["priority"] = "low"

	p, ok := e.Metadata("priority")
	assert.True(t, ok)
	assert.Equal(t, "high", p)
}

func TestEntry_Snapshot(t *testing.T) {
	now := time.Now()
	e := NewEntry("v", time.Minute, now)
	e.access(now.Add(time.Second))
	e.seq = 7

	snap := e.snapshot()
	e.access(now.Add(2 * time.Second))

	assert.Equal(t, uint64(1), snap.AccessCount())
	assert.Equal(t, uint64(7), snap.seq)
	assert.Equal(t, now.Add(time.Second).UnixNano(), snap.LastAccessed().UnixNano())
}
