package cache

import (
	"fmt"
	"strings"
	"time"
)

// EvictionPolicy 淘汰策略类型。每个缓存实例在构造时固定一种策略。
type EvictionPolicy string

const (
	PolicyLRU          EvictionPolicy = "lru"           // Least Recently Used
	PolicyLFU          EvictionPolicy = "lfu"           // Least Frequently Used
	PolicyFIFO         EvictionPolicy = "fifo"          // First In First Out
	PolicyRandom       EvictionPolicy = "random"        // 随机淘汰
	PolicySizeBased    EvictionPolicy = "size_based"    // 按内存占用淘汰
	PolicyAdaptive     EvictionPolicy = "adaptive"      // 多因子自适应
	PolicyWTinyLFU     EvictionPolicy = "w_tiny_lfu"    // Windowed TinyLFU
	PolicySegmentedLRU EvictionPolicy = "segmented_lru" // 分段LRU
	PolicyClock        EvictionPolicy = "clock"         // 时钟（二次机会）
)

// AllPolicies 返回全部受支持的策略。
func AllPolicies() []EvictionPolicy {
	return []EvictionPolicy{
		PolicyLRU, PolicyLFU, PolicyFIFO, PolicyRandom, PolicySizeBased,
		PolicyAdaptive, PolicyWTinyLFU, PolicySegmentedLRU, PolicyClock,
	}
}

// ParseEvictionPolicy 解析策略名，大小写不敏感，接受 "wtinylfu"、"slru" 等常见别名。
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	switch name {
	case "lru":
		return PolicyLRU, nil
	case "lfu":
		return PolicyLFU, nil
	case "fifo":
		return PolicyFIFO, nil
	case "random":
		return PolicyRandom, nil
	case "size_based", "sizebased", "size":
		return PolicySizeBased, nil
	case "adaptive":
		return PolicyAdaptive, nil
	case "w_tiny_lfu", "wtinylfu", "w_tinylfu", "tinylfu":
		return PolicyWTinyLFU, nil
	case "segmented_lru", "segmentedlru", "slru":
		return PolicySegmentedLRU, nil
	case "clock":
		return PolicyClock, nil
	}
	return "", NewCacheError(ErrCodeConfigInvalid, fmt.Sprintf("unknown eviction policy %q", s))
}

// UnlimitedEntries 作为 MaxEntries 的值时，缓存不做条目数淘汰，只有TTL清理会回收空间。
const UnlimitedEntries = 0

// NoExpiration 作为 Insert 的 ttl 时，条目永不过期（忽略默认TTL）。
const NoExpiration time.Duration = -1

const (
	defaultMaxEntries           = 1000
	defaultTTL                  = 5 * time.Minute
	defaultCleanupInterval      = 5 * time.Minute
	defaultShardCount           = 32
	defaultWindowSize           = 10000
	defaultProbationaryCapacity = 1000
	defaultProtectedCapacity    = 500
)

// CacheConfig 缓存配置，在构造缓存时一次性提供。
type CacheConfig struct {
	// MaxEntries 最大条目数；UnlimitedEntries(0) 表示不限制条目数。
	MaxEntries int `json:"max_entries" yaml:"max_entries" mapstructure:"max_entries"`
	// DefaultTTL 默认生存时间；0 表示条目默认不过期。
	DefaultTTL     time.Duration  `json:"default_ttl" yaml:"default_ttl" mapstructure:"default_ttl"`
	EvictionPolicy EvictionPolicy `json:"eviction_policy" yaml:"eviction_policy" mapstructure:"eviction_policy"`
	// MaxMemoryMB 内存预算（MB）；0 表示不限制。SizeBased 策略要求其为正数。
	MaxMemoryMB               int           `json:"max_memory_mb" yaml:"max_memory_mb" mapstructure:"max_memory_mb"`
	BackgroundCleanupInterval time.Duration `json:"background_cleanup_interval" yaml:"background_cleanup_interval" mapstructure:"background_cleanup_interval"`
	EnableMetrics             bool          `json:"enable_metrics" yaml:"enable_metrics" mapstructure:"enable_metrics"`
	// CompressionThresholdKB 值序列化后达到该大小时以 snappy 压缩存储；0 表示关闭。
	CompressionThresholdKB int `json:"compression_threshold_kb" yaml:"compression_threshold_kb" mapstructure:"compression_threshold_kb"`
	ShardCount             int `json:"shard_count" yaml:"shard_count" mapstructure:"shard_count"`

	// SizeBased 使用的 priority 标签权重表。
	PriorityWeights map[string]float64 `json:"priority_weights" yaml:"priority_weights" mapstructure:"priority_weights"`
	// Adaptive 策略参数
	AdaptiveMode      bool `json:"adaptive_mode" yaml:"adaptive_mode" mapstructure:"adaptive_mode"`
	PredictionEnabled bool `json:"prediction_enabled" yaml:"prediction_enabled" mapstructure:"prediction_enabled"`
	// WTinyLFU 窗口大小
	WindowSize int `json:"window_size" yaml:"window_size" mapstructure:"window_size"`
	// SegmentedLRU 分段容量
	ProbationaryCapacity int `json:"probationary_capacity" yaml:"probationary_capacity" mapstructure:"probationary_capacity"`
	ProtectedCapacity    int `json:"protected_capacity" yaml:"protected_capacity" mapstructure:"protected_capacity"`
}

// DefaultCacheConfig 返回默认配置：1000条、5分钟TTL、LRU、5分钟后台清理。
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		MaxEntries:                defaultMaxEntries,
		DefaultTTL:                defaultTTL,
		EvictionPolicy:            PolicyLRU,
		BackgroundCleanupInterval: defaultCleanupInterval,
		EnableMetrics:             true,
		ShardCount:                defaultShardCount,
		WindowSize:                defaultWindowSize,
		ProbationaryCapacity:      defaultProbationaryCapacity,
		ProtectedCapacity:         defaultProtectedCapacity,
	}
}

// Unbounded 报告是否处于不限条目数模式。
func (c *CacheConfig) Unbounded() bool {
	return c.MaxEntries == UnlimitedEntries
}

// MaxMemoryBytes 返回内存预算（字节），未设置时为0。
func (c *CacheConfig) MaxMemoryBytes() int64 {
	return int64(c.MaxMemoryMB) * 1024 * 1024
}

// Validate 验证配置
func (c *CacheConfig) Validate() error {
	if c.MaxEntries < 0 {
		return NewCacheError(ErrCodeConfigInvalid, "max_entries cannot be negative").
			WithContext("max_entries", c.MaxEntries)
	}
	if c.DefaultTTL < 0 {
		return NewCacheError(ErrCodeConfigInvalid, "default_ttl cannot be negative")
	}
	if c.MaxMemoryMB < 0 {
		return NewCacheError(ErrCodeCapacityMisconfigured, "max_memory_mb cannot be negative")
	}
	if c.BackgroundCleanupInterval < 0 {
		return NewCacheError(ErrCodeConfigInvalid, "background_cleanup_interval cannot be negative")
	}
	if c.CompressionThresholdKB < 0 {
		return NewCacheError(ErrCodeConfigInvalid, "compression_threshold_kb cannot be negative")
	}
	if c.ShardCount < 0 {
		return NewCacheError(ErrCodeConfigInvalid, "shard_count cannot be negative")
	}

	policy := PolicyLRU
	if c.EvictionPolicy != "" {
		p, err := ParseEvictionPolicy(string(c.EvictionPolicy))
		if err != nil {
			return err
		}
		policy = p
	}

	if policy == PolicySizeBased && c.MaxMemoryMB == 0 {
		return NewCacheError(ErrCodeCapacityMisconfigured, "size_based policy requires max_memory_mb > 0").
			WithContext("eviction_policy", string(c.EvictionPolicy))
	}
	if policy == PolicySegmentedLRU && (c.ProbationaryCapacity < 0 || c.ProtectedCapacity < 0) {
		return NewCacheError(ErrCodeCapacityMisconfigured, "segment capacities cannot be negative")
	}
	for name, w := range c.PriorityWeights {
		if w < 0 {
			return NewCacheError(ErrCodeConfigInvalid, "priority weight cannot be negative").
				WithContext("priority", name)
		}
	}
	return nil
}

// normalize 填充未设置的可选项，返回副本。
func (c *CacheConfig) normalize() *CacheConfig {
	out := *c
	if out.EvictionPolicy == "" {
		out.EvictionPolicy = PolicyLRU
	}
	if policy, err := ParseEvictionPolicy(string(out.EvictionPolicy)); err == nil {
		out.EvictionPolicy = policy
	}
	if out.ShardCount == 0 {
		out.ShardCount = defaultShardCount
	}
	if out.WindowSize <= 0 {
		out.WindowSize = defaultWindowSize
	}
	if out.ProbationaryCapacity == 0 {
		out.ProbationaryCapacity = defaultProbationaryCapacity
	}
	if out.ProtectedCapacity == 0 {
		out.ProtectedCapacity = defaultProtectedCapacity
	}
	if c.PriorityWeights != nil {
		out.PriorityWeights = make(map[string]float64, len(c.PriorityWeights))
		for k, v := range c.PriorityWeights {
			out.PriorityWeights[k] = v
		}
	}
	return &out
}
