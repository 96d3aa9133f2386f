// Package config 加载应用配置：日志、缓存管理器、HTTP 服务、统计导出和命名缓存。
package config

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"cachecore/pkg/api"
	"cachecore/pkg/cache"
	"cachecore/pkg/exporter"
	"cachecore/pkg/logger"
	"cachecore/pkg/manager"
)

// EnvPrefix 环境变量前缀，例如 CACHECORE_MANAGER_CLEANUP_INTERVAL。
const EnvPrefix = "CACHECORE"

// Config 主配置结构
type Config struct {
	// 日志配置
	Logger logger.Config `json:"logger" yaml:"logger" mapstructure:"logger"`

	// 管理器配置
	Manager manager.Config `json:"manager" yaml:"manager" mapstructure:"manager"`

	// HTTP 服务配置
	Server api.ServerConfig `json:"server" yaml:"server" mapstructure:"server"`

	// 统计导出配置
	InfluxDB exporter.InfluxConfig `json:"influxdb" yaml:"influxdb" mapstructure:"influxdb"`

	// 命名缓存配置，名称统一为小写。每个缓存在默认配置之上覆盖。
	Caches map[string]*cache.CacheConfig `json:"caches" yaml:"caches" mapstructure:"-"`
}

// Default 返回默认配置，包含一个名为 default 的缓存。
func Default() *Config {
	return &Config{
		Logger: logger.Config{
			Level:  "info",
			Format: "text",
		},
		Manager: manager.DefaultConfig(),
		Server:  api.DefaultServerConfig(),
		InfluxDB: exporter.InfluxConfig{
			Measurement: "cache_stats",
			Timeout:     10 * time.Second,
		},
		Caches: map[string]*cache.CacheConfig{
			"default": cache.DefaultCacheConfig(),
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Manager.Validate(); err != nil {
		return err
	}
	if err := c.InfluxDB.Validate(); err != nil {
		return err
	}
	for _, name := range c.CacheNames() {
		if err := c.Caches[name].Validate(); err != nil {
			return cache.WrapCacheError(cache.ErrCodeConfigInvalid, "invalid cache config", err).
				WithContext("cache", name)
		}
	}
	return nil
}

// CacheNames 返回缓存名，按字母序。
func (c *Config) CacheNames() []string {
	names := make([]string, 0, len(c.Caches))
	for name := range c.Caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load 从配置文件和环境变量加载配置。path 为空时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, cache.WrapCacheError(cache.ErrCodeConfigInvalid, "read config file", err).
				WithContext("path", path)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, cache.WrapCacheError(cache.ErrCodeConfigInvalid, "decode config", err)
	}

	if caches := v.GetStringMap("caches"); len(caches) > 0 {
		cfg.Caches = make(map[string]*cache.CacheConfig, len(caches))
		for name := range caches {
			cc := cache.DefaultCacheConfig()
			if err := v.UnmarshalKey("caches."+name, cc, viper.DecodeHook(decodeHook())); err != nil {
				return nil, cache.WrapCacheError(cache.ErrCodeConfigInvalid, "decode cache config", err).
					WithContext("cache", name)
			}
			cfg.Caches[name] = cc
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("logger.level", def.Logger.Level)
	v.SetDefault("logger.format", def.Logger.Format)
	v.SetDefault("manager.cleanup_interval", def.Manager.CleanupInterval)
	v.SetDefault("manager.report_interval", def.Manager.ReportInterval)
	v.SetDefault("manager.observation_interval", def.Manager.ObservationInterval)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.mode", def.Server.Mode)
	v.SetDefault("influxdb.enabled", def.InfluxDB.Enabled)
	v.SetDefault("influxdb.url", def.InfluxDB.URL)
	v.SetDefault("influxdb.token", def.InfluxDB.Token)
	v.SetDefault("influxdb.org", def.InfluxDB.Org)
	v.SetDefault("influxdb.bucket", def.InfluxDB.Bucket)
	v.SetDefault("influxdb.measurement", def.InfluxDB.Measurement)
	v.SetDefault("influxdb.timeout", def.InfluxDB.Timeout)
	return v
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		evictionPolicyHook,
	)
}

var policyType = reflect.TypeOf(cache.EvictionPolicy(""))

// evictionPolicyHook 将 "slru"、"TinyLFU" 等写法规范为策略常量。
func evictionPolicyHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != policyType {
		return data, nil
	}
	s := reflect.ValueOf(data).String()
	if s == "" {
		return cache.EvictionPolicy(""), nil
	}
	return cache.ParseEvictionPolicy(s)
}
