package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvictionPolicy(t *testing.T) {
	tests := []struct {
		input string
		want  EvictionPolicy
	}{
		{"lru", PolicyLRU},
		{"LFU", PolicyLFU},
		{" fifo ", PolicyFIFO},
		{"random", PolicyRandom},
		{"size-based", PolicySizeBased},
		{"adaptive", PolicyAdaptive},
		{"WTinyLFU", PolicyWTinyLFU},
		{"w_tiny_lfu", PolicyWTinyLFU},
		{"slru", PolicySegmentedLRU},
		{"segmented_lru", PolicySegmentedLRU},
		{"clock", PolicyClock},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseEvictionPolicy(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseEvictionPolicy("mru")
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}

func TestAllPoliciesParse(t *testing.T) {
	assert.Len(t, AllPolicies(), 9)
	for _, p := range AllPolicies() {
		got, err := ParseEvictionPolicy(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestCacheConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *CacheConfig)
		want   error
	}{
		{"默认配置", func(c *CacheConfig) {}, nil},
		{"空策略使用LRU", func(c *CacheConfig) { c.EvictionPolicy = "" }, nil},
		{"不限条目数", func(c *CacheConfig) { c.MaxEntries = UnlimitedEntries }, nil},
		{"负条目数", func(c *CacheConfig) { c.MaxEntries = -1 }, ErrConfigInvalid},
		{"负TTL", func(c *CacheConfig) { c.DefaultTTL = -time.Second }, ErrConfigInvalid},
		{"未知策略", func(c *CacheConfig) { c.EvictionPolicy = "mru" }, ErrConfigInvalid},
		{"SizeBased缺少内存预算", func(c *CacheConfig) { c.EvictionPolicy = PolicySizeBased }, ErrCapacityMisconfigured},
		{"SizeBased别名缺少内存预算", func(c *CacheConfig) { c.EvictionPolicy = "size" }, ErrCapacityMisconfigured},
		{"SizeBased有内存预算", func(c *CacheConfig) {
			c.EvictionPolicy = PolicySizeBased
			c.MaxMemoryMB = 16
		}, nil},
		{"负内存预算", func(c *CacheConfig) { c.MaxMemoryMB = -1 }, ErrCapacityMisconfigured},
		{"负权重", func(c *CacheConfig) { c.PriorityWeights = map[string]float64{"x": -1} }, ErrConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCacheConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCacheConfig_Normalize(t *testing.T) {
	cfg := &CacheConfig{EvictionPolicy: "SLRU", PriorityWeights: map[string]float64{"a": 1}}
	n := cfg.normalize()

	assert.Equal(t, PolicySegmentedLRU, n.EvictionPolicy)
	assert.Equal(t, defaultShardCount, n.ShardCount)
	assert.Equal(t, defaultWindowSize, n.WindowSize)
	assert.Equal(t, defaultProbationaryCapacity, n.ProbationaryCapacity)
	assert.Equal(t, defaultProtectedCapacity, n.ProtectedCapacity)

	// 权重表是副本
	n.PriorityWeights["a"] = 2
	assert.Equal(t, 1.0, cfg.PriorityWeights["a"])
}

func TestCacheConfig_MaxMemoryBytes(t *testing.T) {
	cfg := DefaultCacheConfig()
	assert.Equal(t, int64(0), cfg.MaxMemoryBytes())
	cfg.MaxMemoryMB = 2
	assert.Equal(t, int64(2*1024*1024), cfg.MaxMemoryBytes())
	assert.False(t, cfg.Unbounded())
	cfg.MaxEntries = UnlimitedEntries
	assert.True(t, cfg.Unbounded())
}
