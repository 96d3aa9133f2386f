// Package api 通过 HTTP 暴露缓存管理器：统计、维护操作、条目读写和 prometheus 指标。
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"cachecore/pkg/cache"
	"cachecore/pkg/logger"
	"cachecore/pkg/manager"
)

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
	Mode string `json:"mode" yaml:"mode" mapstructure:"mode"` // debug, release, test
}

// DefaultServerConfig 默认监听 :8080，release 模式。
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Addr: ":8080", Mode: gin.ReleaseMode}
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Server 缓存管理 HTTP 服务。条目接口只适用于 string 键和 string 值的缓存。
type Server struct {
	cfg       ServerConfig
	manager   *manager.Manager
	gatherer  prometheus.Gatherer
	router    *gin.Engine
	server    *http.Server
	startedAt time.Time
	log       *logrus.Entry
}

// NewServer 创建服务。gatherer 为空时不注册 /metrics。
func NewServer(cfg ServerConfig, m *manager.Manager, gatherer prometheus.Gatherer, log *logrus.Entry) *Server {
	if log == nil {
		log = logger.WithComponent("api")
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{
		cfg:       cfg,
		manager:   m,
		gatherer:  gatherer,
		startedAt: time.Now(),
		log:       log,
	}
	s.router = s.routes()
	return s
}

// Handler 返回路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/health", s.healthCheck)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", s.getGlobalStats)
		v1.GET("/caches", s.listCaches)
		v1.GET("/caches/:name/stats", s.getCacheStats)
		v1.GET("/caches/:name/report", s.getCacheReport)
		v1.POST("/caches/:name/cleanup", s.cleanupCache)
		v1.POST("/caches/:name/clear", s.clearCache)

		v1.GET("/caches/:name/entries/:key", s.getEntry)
		v1.PUT("/caches/:name/entries/:key", s.putEntry)
		v1.DELETE("/caches/:name/entries/:key", s.deleteEntry)
	}
	return router
}

// Start 在后台启动监听
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.WithField("addr", s.cfg.Addr).Info("HTTP 服务启动")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP 服务异常退出")
		}
	}()
	return nil
}

// Stop 优雅关闭
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("HTTP 请求")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"manager_id": s.manager.ID(),
		"caches":     len(s.manager.Names()),
		"uptime":     time.Since(s.startedAt).String(),
		"timestamp":  time.Now(),
	})
}

// writeError 按错误代码映射 HTTP 状态
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cache.ErrCacheNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, cache.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, cache.ErrConfigInvalid):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: err.Error()})
	}
}
