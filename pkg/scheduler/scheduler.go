package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	cerr "cachecore/pkg/error"
	"cachecore/pkg/logger"
)

const defaultJobTimeout = 5 * time.Minute

// cronParser 支持秒级调度和 @every 描述符
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// EverySchedule 返回固定间隔的调度表达式。
func EverySchedule(interval time.Duration) string {
	return "@every " + interval.String()
}

// DefaultJobScheduler 默认任务调度器实现
type DefaultJobScheduler struct {
	cron     *cron.Cron
	jobs     map[string]*Job
	executor JobExecutor
	mu       sync.RWMutex
	logger   *logrus.Entry
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
}

// NewJobScheduler 创建新的任务调度器，log 为 nil 时使用全局日志器。
func NewJobScheduler(log *logrus.Entry) *DefaultJobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = logger.WithComponent("scheduler")
	}

	return &DefaultJobScheduler{
		cron:   cron.New(cron.WithParser(cronParser)),
		jobs:   make(map[string]*Job),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// LoadConfig 从配置文件加载任务配置
func (s *DefaultJobScheduler) LoadConfig(configPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 检查文件是否存在
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cerr.WrapError(ErrCodeConfigLoad, fmt.Sprintf("job config %s does not exist", configPath), err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return cerr.WrapError(ErrCodeConfigLoad, "failed to read job config", err)
	}

	var config JobsConfig
	if err := v.Unmarshal(&config); err != nil {
		return cerr.WrapError(ErrCodeConfigLoad, "failed to decode job config", err)
	}

	// 验证并添加任务
	for _, jobConfig := range config.Jobs {
		if err := validateJobConfig(jobConfig); err != nil {
			s.logger.WithError(err).Warnf("跳过无效任务配置: %s", jobConfig.Name)
			continue
		}

		if err := s.addJobInternal(jobConfig); err != nil {
			s.logger.WithError(err).Errorf("添加任务失败: %s", jobConfig.Name)
			continue
		}
	}

	s.logger.Infof("成功加载 %d 个任务配置", len(s.jobs))
	return nil
}

// Start 启动调度器
func (s *DefaultJobScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.executor == nil {
		return ErrExecutorMissing
	}
	if s.running {
		return nil
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("任务调度器已启动")

	// 更新任务的下次运行时间
	s.updateNextRunTimes()

	return nil
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *DefaultJobScheduler) Stop() error {
	s.mu.Lock()
	s.cancel()
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		s.logger.Info("任务调度器已停止")
	case <-time.After(30 * time.Second):
		s.logger.Warn("任务调度器停止超时")
	}

	return nil
}

// AddJob 添加任务
func (s *DefaultJobScheduler) AddJob(config JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateJobConfig(config); err != nil {
		return err
	}

	if err := s.addJobInternal(config); err != nil {
		return err
	}
	if s.running {
		s.updateNextRunTimes()
	}
	return nil
}

// RemoveJob 移除任务
func (s *DefaultJobScheduler) RemoveJob(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return jobError(ErrCodeJobNotFound, "job not found", jobName)
	}

	s.cron.Remove(job.EntryID)
	delete(s.jobs, jobName)

	s.logger.Infof("任务已移除: %s", jobName)
	return nil
}

// GetJob 获取任务状态
func (s *DefaultJobScheduler) GetJob(jobName string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobName]
	if !exists {
		return nil, jobError(ErrCodeJobNotFound, "job not found", jobName)
	}

	// 创建副本避免并发修改
	jobCopy := *job
	return &jobCopy, nil
}

// GetAllJobs 获取所有任务
func (s *DefaultJobScheduler) GetAllJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}

	return jobs
}

// RunJob 手动执行任务，同步返回执行结果
func (s *DefaultJobScheduler) RunJob(jobName string) error {
	s.mu.RLock()
	job, exists := s.jobs[jobName]
	executor := s.executor
	s.mu.RUnlock()

	if !exists {
		return jobError(ErrCodeJobNotFound, "job not found", jobName)
	}
	if !job.Config.Enabled {
		return jobError(ErrCodeJobDisabled, "job disabled", jobName)
	}
	if executor == nil {
		return ErrExecutorMissing
	}

	return s.executeJob(job)
}

// SetExecutor 设置任务执行器
func (s *DefaultJobScheduler) SetExecutor(executor JobExecutor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executor = executor
}

// validateJobConfig 验证任务配置
func validateJobConfig(config JobConfig) error {
	if config.Name == "" {
		return cerr.NewError(ErrCodeJobInvalid, "job name is empty")
	}

	if config.Schedule == "" {
		return jobError(ErrCodeJobInvalid, "job schedule is empty", config.Name)
	}

	if _, err := cronParser.Parse(config.Schedule); err != nil {
		return cerr.WrapError(ErrCodeJobInvalid, fmt.Sprintf("invalid schedule %q", config.Schedule), err).
			WithContext("job", config.Name)
	}

	switch config.Kind {
	case JobKindCleanup, JobKindObserve, JobKindReport:
	default:
		return jobError(ErrCodeJobInvalid, fmt.Sprintf("unknown job kind %q", config.Kind), config.Name)
	}

	if config.Timeout < 0 {
		return jobError(ErrCodeJobInvalid, "job timeout cannot be negative", config.Name)
	}

	return nil
}

// addJobInternal 内部添加任务方法（需要持有锁）
func (s *DefaultJobScheduler) addJobInternal(config JobConfig) error {
	if _, exists := s.jobs[config.Name]; exists {
		return jobError(ErrCodeJobExists, "job already exists", config.Name)
	}

	job := &Job{
		ID:     uuid.New().String(),
		Config: config,
		Status: JobStatusPending,
	}

	if !config.Enabled {
		job.Status = JobStatusDisabled
		s.jobs[config.Name] = job
		s.logger.Infof("任务已添加（已禁用）: %s", config.Name)
		return nil
	}

	entryID, err := s.cron.AddFunc(config.Schedule, func() {
		_ = s.executeJob(job)
	})
	if err != nil {
		return cerr.WrapError(ErrCodeJobInvalid, "failed to schedule job", err).WithContext("job", config.Name)
	}

	job.EntryID = entryID
	s.jobs[config.Name] = job

	s.logger.Infof("任务已添加: %s (调度: %s)", config.Name, config.Schedule)
	return nil
}

// executeJob 执行任务，同一任务不会并发执行
func (s *DefaultJobScheduler) executeJob(job *Job) error {
	s.mu.Lock()
	if job.Status == JobStatusRunning {
		s.mu.Unlock()
		s.logger.Warnf("任务正在运行，跳过本次执行: %s", job.Config.Name)
		return nil
	}
	job.Status = JobStatusRunning
	now := time.Now()
	job.LastRun = &now
	job.RunCount++
	executor := s.executor
	s.mu.Unlock()

	s.logger.Debugf("开始执行任务: %s", job.Config.Name)

	timeout := job.Config.Timeout
	if timeout == 0 {
		timeout = defaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	err := executor.Execute(ctx, job)

	s.mu.Lock()
	if err != nil {
		job.Status = JobStatusError
		job.LastError = err
		job.ErrorCount++
		s.logger.WithError(err).Errorf("任务执行失败: %s", job.Config.Name)
	} else {
		job.Status = JobStatusPending
		job.LastError = nil
		s.logger.Debugf("任务执行成功: %s", job.Config.Name)
	}
	s.updateNextRunTimes()
	s.mu.Unlock()
	return err
}

// updateNextRunTimes 更新所有任务的下次运行时间（需要持有锁）
func (s *DefaultJobScheduler) updateNextRunTimes() {
	entries := s.cron.Entries()
	for _, job := range s.jobs {
		if job.Config.Enabled {
			for _, entry := range entries {
				if entry.ID == job.EntryID {
					nextRun := entry.Next
					job.NextRun = &nextRun
					break
				}
			}
		}
	}
}

var _ JobScheduler = (*DefaultJobScheduler)(nil)
