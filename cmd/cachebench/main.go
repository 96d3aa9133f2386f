package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"cachecore/pkg/cache"
	"cachecore/pkg/config"
	"cachecore/pkg/logger"
	"cachecore/pkg/manager"
)

var (
	configPath  = flag.String("config", "", "配置文件路径，取其中的缓存配置作为基准")
	cacheName   = flag.String("cache", "default", "作为基准的缓存名")
	policies    = flag.String("policies", "all", "逗号分隔的策略列表，all 表示全部")
	keys        = flag.Int("keys", 20000, "键空间大小")
	ops         = flag.Int("ops", 200000, "每个策略的总请求数")
	workers     = flag.Int("workers", 8, "并发数")
	valueSize   = flag.Int("value-size", 256, "值大小（字节）")
	skew        = flag.Float64("skew", 1.1, "Zipf 分布参数 s，须大于1")
	loadLatency = flag.Duration("load-latency", 0, "模拟回源延迟")
	seed        = flag.Int64("seed", 42, "随机种子")
	format      = flag.String("format", "text", "输出格式 (text, json, yaml)")
	printConfig = flag.Bool("print-config", false, "打印生效的配置后退出")
)

// Result 单个策略的压测结果
type Result struct {
	Policy     cache.EvictionPolicy `json:"policy" yaml:"policy"`
	Ops        int                  `json:"ops" yaml:"ops"`
	Duration   time.Duration        `json:"duration" yaml:"duration"`
	OpsPerSec  float64              `json:"ops_per_sec" yaml:"ops_per_sec"`
	HitRatio   float64              `json:"hit_ratio" yaml:"hit_ratio"`
	Loads      int64                `json:"loads" yaml:"loads"`
	Evictions  uint64               `json:"evictions" yaml:"evictions"`
	Entries    int                  `json:"entries" yaml:"entries"`
	Memory     int64                `json:"memory_bytes" yaml:"memory_bytes"`
	Efficiency float64              `json:"efficiency" yaml:"efficiency"`
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithComponent("cachebench").WithError(err).Fatal("加载配置失败")
	}
	logger.Init(cfg.Logger)
	log := logger.WithComponent("cachebench")

	base, ok := cfg.Caches[strings.ToLower(*cacheName)]
	if !ok {
		log.WithField("cache", *cacheName).Fatal("配置中不存在该缓存")
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			log.WithError(err).Fatal("序列化配置失败")
		}
		fmt.Print(string(out))
		return
	}

	selected, err := parsePolicies(*policies)
	if err != nil {
		log.WithError(err).Fatal("解析策略列表失败")
	}
	if *skew <= 1 {
		log.WithField("skew", *skew).Fatal("skew 必须大于1")
	}
	if *keys < 2 || *workers < 1 || *ops < *workers {
		log.Fatal("keys 至少为2，workers 至少为1，ops 不少于 workers")
	}

	mgr, err := manager.New(manager.Config{}, manager.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("创建缓存管理器失败")
	}
	defer mgr.Close()

	results := make([]Result, 0, len(selected))
	for _, policy := range selected {
		res, err := runPolicy(mgr, base, policy, log)
		if err != nil {
			log.WithError(err).WithField("policy", policy).Error("压测失败")
			continue
		}
		results = append(results, res)
	}

	if err := printResults(results, *format); err != nil {
		log.WithError(err).Fatal("输出结果失败")
	}
	if *format == "text" {
		fmt.Println()
		fmt.Print(mgr.Report())
	}
}

func parsePolicies(list string) ([]cache.EvictionPolicy, error) {
	if list == "" || list == "all" {
		return cache.AllPolicies(), nil
	}
	var out []cache.EvictionPolicy
	for _, name := range strings.Split(list, ",") {
		p, err := cache.ParseEvictionPolicy(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func runPolicy(mgr *manager.Manager, base *cache.CacheConfig, policy cache.EvictionPolicy, log *logrus.Entry) (Result, error) {
	cfg := *base
	cfg.EvictionPolicy = policy
	cfg.BackgroundCleanupInterval = 0
	if policy == cache.PolicySizeBased && cfg.MaxMemoryMB == 0 {
		cfg.MaxMemoryMB = 64
	}

	store, err := manager.CreateCache[string, []byte](mgr, string(policy), &cfg)
	if err != nil {
		return Result{}, err
	}
	loading := cache.NewLoadingCache(store, &cache.LoaderConfig{Name: string(policy)})

	var loads atomic.Int64
	loader := func(ctx context.Context, key string) ([]byte, error) {
		loads.Add(1)
		if *loadLatency > 0 {
			select {
			case <-time.After(*loadLatency):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		value := make([]byte, *valueSize)
		copy(value, key)
		return value, nil
	}

	perWorker := *ops / *workers
	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < *workers; w++ {
		rng := rand.New(rand.NewSource(*seed + int64(w)))
		zipf := rand.NewZipf(rng, *skew, 1, uint64(*keys-1))
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("key-%d", zipf.Uint64())
				if _, err := loading.GetOrLoad(ctx, key, loader); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	elapsed := time.Since(start)
	store.RecordObservation()

	stats := store.Stats()
	total := perWorker * *workers
	res := Result{
		Policy:     policy,
		Ops:        total,
		Duration:   elapsed,
		OpsPerSec:  float64(total) / elapsed.Seconds(),
		HitRatio:   stats.HitRatio,
		Loads:      loads.Load(),
		Evictions:  stats.TotalEvictions,
		Entries:    stats.TotalEntries,
		Memory:     stats.MemoryUsageBytes,
		Efficiency: stats.EfficiencyScore(),
	}
	log.WithFields(logrus.Fields{
		"policy":    policy,
		"hit_ratio": fmt.Sprintf("%.3f", res.HitRatio),
		"elapsed":   elapsed,
	}).Info("策略压测完成")
	return res, nil
}

func printResults(results []Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(results)
	case "text":
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "POLICY\tOPS/S\tHIT RATIO\tLOADS\tEVICTIONS\tENTRIES\tMEMORY\tEFFICIENCY")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%.0f\t%.3f\t%d\t%d\t%d\t%d\t%.3f\n",
				r.Policy, r.OpsPerSec, r.HitRatio, r.Loads, r.Evictions, r.Entries, r.Memory, r.Efficiency)
		}
		return w.Flush()
	}
	return fmt.Errorf("unknown format %q", format)
}
