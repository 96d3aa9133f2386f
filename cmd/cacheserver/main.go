package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cachecore/pkg/api"
	"cachecore/pkg/config"
	"cachecore/pkg/exporter"
	"cachecore/pkg/logger"
	"cachecore/pkg/manager"
)

var (
	configPath = flag.String("config", "", "配置文件路径（为空时使用默认配置和环境变量）")
	addr       = flag.String("addr", "", "监听地址，覆盖配置文件中的 server.addr")
	jobsPath   = flag.String("jobs", "", "额外的维护任务配置文件")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithComponent("cacheserver").WithError(err).Fatal("加载配置失败")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger.Init(cfg.Logger)
	log := logger.WithComponent("cacheserver")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []manager.Option{
		manager.WithLogger(logger.WithComponent("manager")),
		manager.WithRegisterer(registry),
	}

	var influx *exporter.InfluxExporter
	if cfg.InfluxDB.Enabled {
		influx, err = exporter.NewInfluxExporter(cfg.InfluxDB, logger.WithComponent("exporter"))
		if err != nil {
			log.WithError(err).Fatal("创建 InfluxDB 导出器失败")
		}
		defer influx.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := influx.Health(ctx); err != nil {
			log.WithError(err).Warn("InfluxDB 暂不可用，报告写入将在后续重试")
		}
		cancel()
		opts = append(opts, manager.WithReporter(influx))
	}

	mgr, err := manager.New(cfg.Manager, opts...)
	if err != nil {
		log.WithError(err).Fatal("创建缓存管理器失败")
	}

	// HTTP 条目接口按 string 键值访问缓存
	for _, name := range cfg.CacheNames() {
		if _, err := manager.CreateCache[string, string](mgr, name, cfg.Caches[name]); err != nil {
			log.WithError(err).WithField("cache", name).Fatal("创建缓存失败")
		}
		log.WithField("cache", name).WithField("policy", cfg.Caches[name].EvictionPolicy).Info("缓存已创建")
	}

	if *jobsPath != "" {
		if err := mgr.LoadJobs(*jobsPath); err != nil {
			log.WithError(err).Fatal("加载维护任务失败")
		}
	}

	if err := mgr.Start(); err != nil {
		log.WithError(err).Fatal("启动缓存管理器失败")
	}

	server := api.NewServer(cfg.Server, mgr, registry, logger.WithComponent("api"))
	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("启动 HTTP 服务失败")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	log.Info("cacheserver 运行中，按 Ctrl+C 停止...")
	<-sigChan

	log.Info("收到停止信号，正在优雅关闭...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.WithError(err).Error("关闭 HTTP 服务失败")
	}
	if err := mgr.Close(); err != nil {
		log.WithError(err).Error("关闭缓存管理器失败")
	}
	log.Info("cacheserver 已停止")
}
