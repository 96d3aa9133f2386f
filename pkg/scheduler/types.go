package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// JobKind 维护任务类型
type JobKind string

const (
	JobKindCleanup JobKind = "cleanup" // TTL过期清理
	JobKindObserve JobKind = "observe" // 向自适应策略提交命中率样本
	JobKindReport  JobKind = "report"  // 输出性能报告
)

// JobConfig 定义单个维护任务的配置
type JobConfig struct {
	Name     string                 `yaml:"name" json:"name" mapstructure:"name"`
	Enabled  bool                   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Schedule string                 `yaml:"schedule" json:"schedule" mapstructure:"schedule"` // 5或6段cron表达式，或 "@every 30s"
	Kind     JobKind                `yaml:"kind" json:"kind" mapstructure:"kind"`
	Caches   []string               `yaml:"caches,omitempty" json:"caches,omitempty" mapstructure:"caches"` // 目标缓存，为空表示全部
	Timeout  time.Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`
	Params   map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty" mapstructure:"params"`
}

// JobsConfig 定义任务配置文件结构
type JobsConfig struct {
	Jobs []JobConfig `yaml:"jobs" json:"jobs" mapstructure:"jobs"`
}

// Job 表示一个已登记的任务
type Job struct {
	ID         string
	Config     JobConfig
	EntryID    cron.EntryID
	Status     JobStatus
	LastRun    *time.Time
	NextRun    *time.Time
	RunCount   int64
	ErrorCount int64
	LastError  error
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusError    JobStatus = "error"
	JobStatusDisabled JobStatus = "disabled"
)

// JobExecutor 任务执行器接口
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// JobExecutorFunc 把函数适配为 JobExecutor。
type JobExecutorFunc func(ctx context.Context, job *Job) error

// Execute 调用函数本身
func (f JobExecutorFunc) Execute(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// JobScheduler 任务调度器接口
type JobScheduler interface {
	// 加载配置
	LoadConfig(configPath string) error

	// 启动调度器
	Start() error

	// 停止调度器
	Stop() error

	// 添加任务
	AddJob(config JobConfig) error

	// 移除任务
	RemoveJob(jobName string) error

	// 获取任务状态
	GetJob(jobName string) (*Job, error)

	// 获取所有任务
	GetAllJobs() []*Job

	// 手动执行任务
	RunJob(jobName string) error

	// 设置任务执行器
	SetExecutor(executor JobExecutor)
}
