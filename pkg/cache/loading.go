package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// LoaderFunc 缓存未命中时的回源函数。
type LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// LoaderConfig 回源与熔断配置
type LoaderConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`                   // 熔断器名称
	TTL         time.Duration `yaml:"ttl" mapstructure:"ttl"`                     // 回源结果的TTL，0 使用缓存默认TTL
	MaxRequests uint32        `yaml:"max_requests" mapstructure:"max_requests"`   // 半开状态下的最大请求数
	Interval    time.Duration `yaml:"interval" mapstructure:"interval"`           // 统计窗口时间
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`             // 熔断器打开后的超时时间
	ReadyToTrip uint32        `yaml:"ready_to_trip" mapstructure:"ready_to_trip"` // 触发熔断的连续失败次数
}

// DefaultLoaderConfig 默认回源配置
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		Name:        "cache-loader",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
	}
}

// LoadingCache 旁路加载缓存：同一键的并发回源只执行一次，回源失败累计到阈值后熔断。
type LoadingCache[K comparable, V any] struct {
	*Store[K, V]

	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
}

// NewLoadingCache 包装已有 Store。
func NewLoadingCache[K comparable, V any](store *Store[K, V], config *LoaderConfig) *LoadingCache[K, V] {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	log := store.log

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return config.ReadyToTrip > 0 && counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("回源熔断器状态变更")
		},
	}

	return &LoadingCache[K, V]{
		Store:   store,
		breaker: gobreaker.NewCircuitBreaker(settings),
		ttl:     config.TTL,
	}
}

// GetOrLoad 命中时直接返回，否则调用 loader 并写入缓存。
// loader 失败或熔断器打开时返回 LOAD_FAILED 错误，失败结果不缓存。
func (c *LoadingCache[K, V]) GetOrLoad(ctx context.Context, key K, loader LoaderFunc[K, V]) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(keyString(key), func() (interface{}, error) {
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		loaded, err := c.breaker.Execute(func() (interface{}, error) {
			return loader(ctx, key)
		})
		if err != nil {
			return nil, err
		}
		v, _ := loaded.(V)
		c.Insert(key, v, c.ttl)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, WrapCacheError(ErrCodeLoadFailed, "failed to load cache entry", err).
			WithContext("cache", c.Name()).
			WithContext("key", keyString(key))
	}
	v, _ := res.(V)
	return v, nil
}

// Unwrap 返回底层缓存。
func (c *LoadingCache[K, V]) Unwrap() *Store[K, V] {
	return c.Store
}

// BreakerState 返回熔断器当前状态。
func (c *LoadingCache[K, V]) BreakerState() gobreaker.State {
	return c.breaker.State()
}
