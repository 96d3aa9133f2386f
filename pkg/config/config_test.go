package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecore/pkg/cache"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestDefault 测试默认配置
func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "text", cfg.Logger.Format)
	assert.Equal(t, 5*time.Minute, cfg.Manager.CleanupInterval)
	assert.Equal(t, time.Minute, cfg.Manager.ObservationInterval)
	assert.Zero(t, cfg.Manager.ReportInterval)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.InfluxDB.Enabled)
	assert.Equal(t, "cache_stats", cfg.InfluxDB.Measurement)
	require.Contains(t, cfg.Caches, "default")
	assert.Equal(t, cache.PolicyLRU, cfg.Caches["default"].EvictionPolicy)
	assert.NoError(t, cfg.Validate(), "默认配置应该是有效的")
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "cache.yaml", `
logger:
  level: debug
  format: json
manager:
  cleanup_interval: 30s
  report_interval: 1m
server:
  addr: 127.0.0.1:9090
influxdb:
  enabled: true
  url: http://influx:8086
  org: ops
  bucket: caches
caches:
  sessions:
    max_entries: 200
    default_ttl: 10m
    eviction_policy: slru
    protected_capacity: 50
  blobs:
    eviction_policy: size
    max_memory_mb: 64
    compression_threshold_kb: 4
    priority_weights:
      completion: 0.9
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, 30*time.Second, cfg.Manager.CleanupInterval)
	assert.Equal(t, time.Minute, cfg.Manager.ReportInterval)
	assert.Equal(t, time.Minute, cfg.Manager.ObservationInterval, "未配置的项保留默认值")

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.True(t, cfg.InfluxDB.Enabled)
	assert.Equal(t, "http://influx:8086", cfg.InfluxDB.URL)
	assert.Equal(t, 10*time.Second, cfg.InfluxDB.Timeout)

	assert.Equal(t, []string{"blobs", "sessions"}, cfg.CacheNames())

	sessions := cfg.Caches["sessions"]
	assert.Equal(t, 200, sessions.MaxEntries)
	assert.Equal(t, 10*time.Minute, sessions.DefaultTTL)
	assert.Equal(t, cache.PolicySegmentedLRU, sessions.EvictionPolicy)
	assert.Equal(t, 50, sessions.ProtectedCapacity)
	assert.Equal(t, 1000, sessions.ProbationaryCapacity)
	assert.Equal(t, 5*time.Minute, sessions.BackgroundCleanupInterval)

	blobs := cfg.Caches["blobs"]
	assert.Equal(t, cache.PolicySizeBased, blobs.EvictionPolicy)
	assert.Equal(t, 64, blobs.MaxMemoryMB)
	assert.Equal(t, 4, blobs.CompressionThresholdKB)
	assert.InDelta(t, 0.9, blobs.PriorityWeights["completion"], 1e-9)
	assert.Equal(t, 1000, blobs.MaxEntries)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CACHECORE_MANAGER_CLEANUP_INTERVAL", "2m")
	t.Setenv("CACHECORE_LOGGER_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Manager.CleanupInterval)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		target  error
	}{
		{
			name:    "未知策略",
			content: "caches:\n  a:\n    eviction_policy: mru\n",
			target:  cache.ErrConfigInvalid,
		},
		{
			name:    "按大小淘汰未配置内存",
			content: "caches:\n  a:\n    eviction_policy: size_based\n",
			target:  cache.ErrConfigInvalid,
		},
		{
			name:    "启用导出但缺少地址",
			content: "influxdb:\n  enabled: true\n",
			target:  cache.ErrConfigInvalid,
		},
		{
			name:    "负的清理间隔",
			content: "manager:\n  cleanup_interval: -1s\n",
			target:  cache.ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "bad.yaml", tt.content))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target))
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, cache.ErrConfigInvalid))
}

func TestValidate_WrapsCacheError(t *testing.T) {
	cfg := Default()
	cfg.Caches["default"].EvictionPolicy = cache.PolicySizeBased

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrConfigInvalid))
	assert.True(t, errors.Is(err, cache.ErrCapacityMisconfigured), "应能通过 Unwrap 找到原因")
}
