// Package exporter 将缓存统计写入外部时序数据库。
package exporter

import (
	"context"
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"cachecore/pkg/cache"
	cerr "cachecore/pkg/error"
	"cachecore/pkg/logger"
)

const defaultMeasurement = "cache_stats"

// ErrCodeExportFailed 表示统计写入外部存储失败。
const ErrCodeExportFailed cerr.ErrorCode = "EXPORT_FAILED"

var ErrExportFailed = cerr.NewError(ErrCodeExportFailed, "export failed")

// InfluxConfig InfluxDB 写入配置
type InfluxConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	URL         string        `json:"url" yaml:"url" mapstructure:"url"`
	Token       string        `json:"token" yaml:"token" mapstructure:"token"`
	Org         string        `json:"org" yaml:"org" mapstructure:"org"`
	Bucket      string        `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Measurement string        `json:"measurement" yaml:"measurement" mapstructure:"measurement"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Validate 验证配置，未启用时不做检查。
func (c InfluxConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" || c.Org == "" || c.Bucket == "" {
		return cache.NewCacheError(cache.ErrCodeConfigInvalid, "influxdb url, org and bucket are required")
	}
	if c.Timeout < 0 {
		return cache.NewCacheError(cache.ErrCodeConfigInvalid, "influxdb timeout cannot be negative")
	}
	return nil
}

// InfluxExporter 每次报告为每个缓存写入一个数据点。
type InfluxExporter struct {
	client      influxdb2.Client
	writer      api.WriteAPIBlocking
	measurement string
	timeout     time.Duration
	now         func() time.Time
	log         *logrus.Entry
}

// NewInfluxExporter 创建导出器
func NewInfluxExporter(cfg InfluxConfig, log *logrus.Entry) (*InfluxExporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.WithComponent("exporter")
	}

	measurement := cfg.Measurement
	if measurement == "" {
		measurement = defaultMeasurement
	}

	opts := influxdb2.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.SetHTTPRequestTimeout(requestTimeoutSeconds(cfg.Timeout))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	return &InfluxExporter{
		client:      client,
		writer:      client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
		timeout:     cfg.Timeout,
		now:         time.Now,
		log:         log.WithField("bucket", cfg.Bucket),
	}, nil
}

// requestTimeoutSeconds 客户端超时以秒为单位，不足一秒的部分向上取整
func requestTimeoutSeconds(d time.Duration) uint {
	return uint((d + time.Second - 1) / time.Second)
}

// Report 实现 manager.Reporter
func (e *InfluxExporter) Report(ctx context.Context, stats map[string]cache.StatsSnapshot) error {
	if len(stats) == 0 {
		return nil
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	ts := e.now()
	points := make([]*write.Point, 0, len(names))
	for _, name := range names {
		points = append(points, statsPoint(e.measurement, name, stats[name], ts))
	}

	if err := e.writer.WritePoint(ctx, points...); err != nil {
		return cerr.WrapError(ErrCodeExportFailed, "write stats to influxdb", err)
	}
	e.log.WithField("points", len(points)).Debug("缓存统计已写入")
	return nil
}

// Health 检查 InfluxDB 可用性
func (e *InfluxExporter) Health(ctx context.Context) error {
	_, err := e.client.Health(ctx)
	return err
}

// Close 关闭客户端
func (e *InfluxExporter) Close() {
	e.client.Close()
}

func statsPoint(measurement, name string, s cache.StatsSnapshot, ts time.Time) *write.Point {
	return influxdb2.NewPointWithMeasurement(measurement).
		AddTag("cache", name).
		AddField("entries", int64(s.TotalEntries)).
		AddField("hits", int64(s.TotalHits)).
		AddField("misses", int64(s.TotalMisses)).
		AddField("sets", int64(s.TotalSets)).
		AddField("deletes", int64(s.TotalDeletes)).
		AddField("evictions", int64(s.TotalEvictions)).
		AddField("expirations", int64(s.TotalExpirations)).
		AddField("hit_ratio", s.HitRatio).
		AddField("memory_bytes", s.MemoryUsageBytes).
		AddField("efficiency", s.EfficiencyScore()).
		SetTime(ts)
}
