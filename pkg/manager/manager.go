// Package manager 管理多个命名缓存：创建与注册、周期性过期清理、自适应观测、性能报告和全局统计。
package manager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"cachecore/pkg/cache"
	"cachecore/pkg/logger"
	"cachecore/pkg/scheduler"
)

// Managed 管理器看到的缓存视图，与键值类型无关。
type Managed interface {
	CleanupExpired() int
	Size() int
	Stats() cache.StatsSnapshot
	ResetStats()
	Clear()
	RecordObservation()
	Close() error
}

const (
	cleanupJobName     = "cleanup"
	observationJobName = "observe"
	reportJobName      = "report"
	cacheJobPrefix     = "cleanup:"
)

// Config 管理器配置，间隔为0表示不启用对应的周期任务。
type Config struct {
	CleanupInterval     time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	ReportInterval      time.Duration `json:"report_interval" yaml:"report_interval" mapstructure:"report_interval"`
	ObservationInterval time.Duration `json:"observation_interval" yaml:"observation_interval" mapstructure:"observation_interval"`
}

// DefaultConfig 默认每5分钟清理、每分钟观测，不输出周期报告。
func DefaultConfig() Config {
	return Config{
		CleanupInterval:     5 * time.Minute,
		ObservationInterval: time.Minute,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.CleanupInterval < 0 || c.ReportInterval < 0 || c.ObservationInterval < 0 {
		return cache.NewCacheError(cache.ErrCodeConfigInvalid, "manager intervals cannot be negative")
	}
	return nil
}

// Reporter 接收周期性性能报告，例如写入时序数据库。
type Reporter interface {
	Report(ctx context.Context, stats map[string]cache.StatsSnapshot) error
}

// Option 管理器可选项
type Option func(*Manager)

// WithLogger 注入日志实例
func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithRegisterer 为通过 CreateCache 创建的缓存注册指标
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(m *Manager) {
		m.registerer = registerer
	}
}

// WithReporter 追加报告接收方，在每次报告任务中调用。
func WithReporter(r Reporter) Option {
	return func(m *Manager) {
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
}

type registration struct {
	cache    Managed
	ownSweep bool // 按缓存自身的清理间隔单独调度
}

// Manager 缓存管理器
type Manager struct {
	id  string
	cfg Config

	mu      sync.RWMutex
	caches  map[string]*registration
	started bool
	closed  bool

	scheduler  *scheduler.DefaultJobScheduler
	registerer prometheus.Registerer
	reporters  []Reporter
	log        *logrus.Entry
}

// New 创建管理器
func New(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		id:     uuid.New().String(),
		cfg:    cfg,
		caches: make(map[string]*registration),
		log:    logger.WithComponent("manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("manager_id", m.id)
	m.scheduler = scheduler.NewJobScheduler(m.log.WithField("subsystem", "scheduler"))
	m.scheduler.SetExecutor(m)

	jobs := []scheduler.JobConfig{
		{Name: cleanupJobName, Kind: scheduler.JobKindCleanup, Enabled: cfg.CleanupInterval > 0},
		{Name: observationJobName, Kind: scheduler.JobKindObserve, Enabled: cfg.ObservationInterval > 0},
		{Name: reportJobName, Kind: scheduler.JobKindReport, Enabled: cfg.ReportInterval > 0},
	}
	intervals := []time.Duration{cfg.CleanupInterval, cfg.ObservationInterval, cfg.ReportInterval}
	for i, job := range jobs {
		if !job.Enabled {
			continue
		}
		job.Schedule = scheduler.EverySchedule(intervals[i])
		if err := m.scheduler.AddJob(job); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ID 返回管理器实例ID
func (m *Manager) ID() string { return m.id }

// Register 登记一个已创建的缓存，由全局清理任务负责其过期清理。
func (m *Manager) Register(name string, c Managed) error {
	return m.register(name, c, false)
}

func (m *Manager) register(name string, c Managed, ownSweep bool) error {
	if name == "" {
		return cache.NewCacheError(cache.ErrCodeConfigInvalid, "cache name is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return cache.NewCacheError(cache.ErrCodeCacheClosed, "manager closed")
	}
	if _, exists := m.caches[name]; exists {
		return cache.NewCacheError(cache.ErrCodeCacheExists, "cache already registered").WithContext("cache", name)
	}
	m.caches[name] = &registration{cache: c, ownSweep: ownSweep}
	m.log.WithField("cache", name).Info("缓存已登记")
	return nil
}

// Get 按名称查找缓存
func (m *Manager) Get(name string) (Managed, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.caches[name]
	if !ok {
		return nil, false
	}
	return reg.cache, true
}

// Remove 注销并关闭缓存
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	reg, ok := m.caches[name]
	if ok {
		delete(m.caches, name)
	}
	m.mu.Unlock()

	if !ok {
		return cache.NewCacheError(cache.ErrCodeCacheNotFound, "cache not registered").WithContext("cache", name)
	}
	if reg.ownSweep {
		_ = m.scheduler.RemoveJob(cacheJobPrefix + name)
	}
	m.log.WithField("cache", name).Info("缓存已注销")
	return reg.cache.Close()
}

// Names 返回已登记的缓存名，按字母序。
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// targets 返回任务的目标缓存。names 为空时取全部，sweepOnly 时排除自带清理任务的缓存。
func (m *Manager) targets(names []string, sweepOnly bool) map[string]Managed {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Managed)
	if len(names) == 0 {
		for name, reg := range m.caches {
			if sweepOnly && reg.ownSweep {
				continue
			}
			out[name] = reg.cache
		}
		return out
	}
	for _, name := range names {
		if reg, ok := m.caches[name]; ok {
			out[name] = reg.cache
		}
	}
	return out
}

// CleanupAll 对所有缓存执行过期清理，返回清理总数。
func (m *Manager) CleanupAll() int {
	return m.cleanup(m.targets(nil, false))
}

func (m *Manager) cleanup(caches map[string]Managed) int {
	total := 0
	for name, c := range caches {
		n := c.CleanupExpired()
		if n > 0 {
			m.log.WithFields(logrus.Fields{"cache": name, "expired": n}).Debug("过期清理完成")
		}
		total += n
	}
	return total
}

// ObserveAll 让每个缓存向其策略提交一次观测样本。
func (m *Manager) ObserveAll() {
	for _, c := range m.targets(nil, false) {
		c.RecordObservation()
	}
}

// GlobalStats 汇总所有缓存的统计
func (m *Manager) GlobalStats() cache.StatsSnapshot {
	var total cache.StatsSnapshot
	for _, c := range m.targets(nil, false) {
		total = total.Merge(c.Stats())
	}
	return total
}

// StatsByName 返回每个缓存的统计
func (m *Manager) StatsByName() map[string]cache.StatsSnapshot {
	out := make(map[string]cache.StatsSnapshot)
	for name, c := range m.targets(nil, false) {
		out[name] = c.Stats()
	}
	return out
}

// ResetStats 清零所有缓存的统计
func (m *Manager) ResetStats() {
	for _, c := range m.targets(nil, false) {
		c.ResetStats()
	}
}

// ClearAll 清空所有缓存的条目
func (m *Manager) ClearAll() {
	for _, c := range m.targets(nil, false) {
		c.Clear()
	}
}

// Report 生成指定缓存（为空时全部）的性能报告
func (m *Manager) Report(names ...string) string {
	caches := m.targets(names, false)
	sorted := make([]string, 0, len(caches))
	for name := range caches {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var b strings.Builder
	for _, name := range sorted {
		b.WriteString(caches[name].Stats().Report(name))
		b.WriteString("\n")
	}
	return b.String()
}

// Execute 实现 scheduler.JobExecutor，按任务类型对目标缓存执行维护。
func (m *Manager) Execute(ctx context.Context, job *scheduler.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch job.Config.Kind {
	case scheduler.JobKindCleanup:
		caches := m.targets(job.Config.Caches, true)
		if n := m.cleanup(caches); n > 0 {
			m.log.WithFields(logrus.Fields{"job": job.Config.Name, "expired": n}).Info("定期清理完成")
		}
	case scheduler.JobKindObserve:
		for _, c := range m.targets(job.Config.Caches, false) {
			c.RecordObservation()
		}
	case scheduler.JobKindReport:
		var params reportParams
		if err := mapstructure.WeakDecode(job.Config.Params, &params); err != nil {
			return cache.WrapCacheError(cache.ErrCodeConfigInvalid, "invalid report job params", err).
				WithContext("job", job.Config.Name)
		}
		return m.report(ctx, job.Config.Caches, params)
	default:
		return cache.NewCacheError(cache.ErrCodeConfigInvalid, fmt.Sprintf("unknown job kind %q", job.Config.Kind))
	}
	return nil
}

// reportParams report 任务的 params
type reportParams struct {
	MinEntries int  `mapstructure:"min_entries"` // 条目数少于此值的缓存不报告
	ResetStats bool `mapstructure:"reset_stats"` // 报告后清零统计
}

func (m *Manager) report(ctx context.Context, names []string, params reportParams) error {
	snapshots := make(map[string]cache.StatsSnapshot)
	for name, c := range m.targets(names, false) {
		stats := c.Stats()
		if stats.TotalEntries < params.MinEntries {
			continue
		}
		if params.ResetStats {
			c.ResetStats()
		}
		snapshots[name] = stats
		m.log.WithFields(logrus.Fields{
			"cache":      name,
			"entries":    stats.TotalEntries,
			"hit_ratio":  stats.HitRatio,
			"evictions":  stats.TotalEvictions,
			"efficiency": stats.EfficiencyScore(),
		}).Info("缓存性能报告")
	}

	var firstErr error
	for _, r := range m.reporters {
		if err := r.Report(ctx, snapshots); err != nil {
			m.log.WithError(err).Warn("性能报告发送失败")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Scheduler 返回内部调度器，可用于查看任务状态或追加任务。
func (m *Manager) Scheduler() *scheduler.DefaultJobScheduler { return m.scheduler }

// LoadJobs 从配置文件追加维护任务
func (m *Manager) LoadJobs(path string) error {
	return m.scheduler.LoadConfig(path)
}

// Start 启动周期任务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return cache.NewCacheError(cache.ErrCodeCacheClosed, "manager closed")
	}
	if m.started {
		return nil
	}
	if err := m.scheduler.Start(); err != nil {
		return err
	}
	m.started = true
	m.log.Info("缓存管理器已启动")
	return nil
}

// Close 停止周期任务并关闭全部缓存
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	regs := m.caches
	m.caches = make(map[string]*registration)
	m.mu.Unlock()

	if started {
		if err := m.scheduler.Stop(); err != nil {
			return err
		}
	}

	var firstErr error
	for name, reg := range regs {
		if err := reg.cache.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close cache %s: %w", name, err)
		}
	}
	m.log.Info("缓存管理器已关闭")
	return firstErr
}

// CreateCache 创建缓存并登记到管理器。缓存配置了清理间隔时，为其单独调度清理任务。
func CreateCache[K comparable, V any](m *Manager, name string, cfg *cache.CacheConfig) (*cache.Store[K, V], error) {
	if cfg == nil {
		cfg = cache.DefaultCacheConfig()
	}
	opts := []cache.Option{
		cache.WithName(name),
		cache.WithLogger(m.log.WithField("cache", name)),
	}
	if m.registerer != nil {
		opts = append(opts, cache.WithMetrics(m.registerer))
	}

	store, err := cache.New[K, V](cfg, opts...)
	if err != nil {
		return nil, err
	}

	ownSweep := cfg.BackgroundCleanupInterval > 0
	if err := m.register(name, store, ownSweep); err != nil {
		_ = store.Close()
		return nil, err
	}

	if ownSweep {
		job := scheduler.JobConfig{
			Name:     cacheJobPrefix + name,
			Enabled:  true,
			Schedule: scheduler.EverySchedule(cfg.BackgroundCleanupInterval),
			Kind:     scheduler.JobKindCleanup,
			Caches:   []string{name},
		}
		if err := m.scheduler.AddJob(job); err != nil {
			_ = m.Remove(name)
			return nil, err
		}
	}
	return store, nil
}

// Lookup 按名称取得指定类型的缓存，包装类型（如 LoadingCache）返回其底层缓存
func Lookup[K comparable, V any](m *Manager, name string) (*cache.Store[K, V], error) {
	c, ok := m.Get(name)
	if !ok {
		return nil, cache.NewCacheError(cache.ErrCodeCacheNotFound, "cache not registered").WithContext("cache", name)
	}
	switch v := c.(type) {
	case *cache.Store[K, V]:
		return v, nil
	case interface{ Unwrap() *cache.Store[K, V] }:
		return v.Unwrap(), nil
	}
	return nil, cache.NewCacheError(cache.ErrCodeConfigInvalid, "cache has a different key or value type").
		WithContext("cache", name)
}

var (
	_ Managed               = (*cache.Store[string, any])(nil)
	_ scheduler.JobExecutor = (*Manager)(nil)
)
