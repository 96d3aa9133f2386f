package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cachecore/pkg/cache"
	"cachecore/pkg/manager"
)

// PutEntryRequest 写入条目的请求体。TTL 为空时使用缓存默认TTL，"-1s" 等负值表示不过期。
type PutEntryRequest struct {
	Value    string `json:"value"`
	TTL      string `json:"ttl"`
	Priority string `json:"priority"`
}

// EntryResponse 条目响应
type EntryResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) lookup(c *gin.Context) (manager.Managed, bool) {
	name := c.Param("name")
	managed, ok := s.manager.Get(name)
	if !ok {
		writeError(c, cache.NewCacheError(cache.ErrCodeCacheNotFound, "cache not registered").WithContext("cache", name))
		return nil, false
	}
	return managed, true
}

func (s *Server) getGlobalStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"global": s.manager.GlobalStats(),
		"caches": s.manager.StatsByName(),
	})
}

func (s *Server) listCaches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"caches": s.manager.Names()})
}

func (s *Server) getCacheStats(c *gin.Context) {
	managed, ok := s.lookup(c)
	if !ok {
		return
	}
	stats := managed.Stats()
	c.JSON(http.StatusOK, gin.H{
		"name":       c.Param("name"),
		"stats":      stats,
		"efficiency": stats.EfficiencyScore(),
	})
}

func (s *Server) getCacheReport(c *gin.Context) {
	if _, ok := s.lookup(c); !ok {
		return
	}
	c.String(http.StatusOK, s.manager.Report(c.Param("name")))
}

func (s *Server) cleanupCache(c *gin.Context) {
	managed, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": managed.CleanupExpired()})
}

func (s *Server) clearCache(c *gin.Context) {
	managed, ok := s.lookup(c)
	if !ok {
		return
	}
	managed.Clear()
	c.Status(http.StatusNoContent)
}

func (s *Server) getEntry(c *gin.Context) {
	store, err := manager.Lookup[string, string](s.manager, c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	key := c.Param("key")
	value, err := store.RequireGet(key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, EntryResponse{Key: key, Value: value})
}

func (s *Server) putEntry(c *gin.Context) {
	store, err := manager.Lookup[string, string](s.manager, c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}

	var req PutEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	var ttl time.Duration
	if req.TTL != "" {
		ttl, err = time.ParseDuration(req.TTL)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "invalid ttl"})
			return
		}
	}

	var opts []cache.InsertOption
	if req.Priority != "" {
		opts = append(opts, cache.WithPriority(req.Priority))
	}

	key := c.Param("key")
	store.Insert(key, req.Value, ttl, opts...)
	c.JSON(http.StatusCreated, EntryResponse{Key: key, Value: req.Value})
}

func (s *Server) deleteEntry(c *gin.Context) {
	store, err := manager.Lookup[string, string](s.manager, c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	if _, ok := store.Remove(c.Param("key")); !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "cache entry not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
