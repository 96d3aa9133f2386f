package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// MetadataPriority 是评分策略读取的优先级元数据键。
const MetadataPriority = "priority"

// Option 配置 Store 的可选项。
type Option func(*storeOptions)

type storeOptions struct {
	name       string
	log        *logrus.Entry
	registerer prometheus.Registerer
	now        func() time.Time
}

// WithName 设置缓存名称，用于日志字段和指标标签。
func WithName(name string) Option {
	return func(o *storeOptions) {
		o.name = name
	}
}

// WithLogger 注入日志实例。
func WithLogger(log *logrus.Entry) Option {
	return func(o *storeOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics 在配置启用指标时，将指标注册到 registerer。
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(o *storeOptions) {
		o.registerer = registerer
	}
}

// WithClock 替换时间源，测试中用于控制过期。
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// InsertOption 单次写入的可选项。
type InsertOption func(*insertOptions)

type insertOptions struct {
	metadata map[string]string
}

// WithMetadata 为条目附加一个元数据标签。
func WithMetadata(key, value string) InsertOption {
	return func(o *insertOptions) {
		if o.metadata == nil {
			o.metadata = make(map[string]string)
		}
		o.metadata[key] = value
	}
}

// WithPriority 设置 priority 标签，如 "high"、"medium"、"low"。
func WithPriority(priority string) InsertOption {
	return WithMetadata(MetadataPriority, priority)
}
