package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cachecore/pkg/cache"
	"cachecore/pkg/logger"
	"cachecore/pkg/manager"
)

type testEnv struct {
	server  *Server
	manager *manager.Manager
	store   *cache.Store[string, string]
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := manager.New(manager.Config{}, manager.WithLogger(logger.Discard()), manager.WithRegisterer(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	cfg := cache.DefaultCacheConfig()
	cfg.DefaultTTL = 0
	cfg.BackgroundCleanupInterval = 0
	store, err := manager.CreateCache[string, string](m, "pages", cfg)
	require.NoError(t, err)

	_, err = manager.CreateCache[int, int](m, "numbers", cfg)
	require.NoError(t, err)

	srv := NewServer(ServerConfig{Mode: gin.TestMode}, m, reg, logger.Discard())
	return &testEnv{server: srv, manager: m, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, env.manager.ID(), body["manager_id"])
	assert.EqualValues(t, 2, body["caches"])
}

func TestListCaches(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/caches", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Caches []string `json:"caches"`
	}
	decode(t, w, &body)
	assert.Equal(t, []string{"numbers", "pages"}, body.Caches)
}

func TestEntries(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "写入", method: http.MethodPut, path: "/api/v1/caches/pages/entries/home", body: `{"value":"<html>","priority":"high"}`, status: http.StatusCreated},
		{name: "读取", method: http.MethodGet, path: "/api/v1/caches/pages/entries/home", status: http.StatusOK},
		{name: "读取不存在的键", method: http.MethodGet, path: "/api/v1/caches/pages/entries/none", status: http.StatusNotFound},
		{name: "无效TTL", method: http.MethodPut, path: "/api/v1/caches/pages/entries/x", body: `{"value":"v","ttl":"soon"}`, status: http.StatusBadRequest},
		{name: "无效请求体", method: http.MethodPut, path: "/api/v1/caches/pages/entries/x", body: `{`, status: http.StatusBadRequest},
		{name: "类型不符的缓存", method: http.MethodGet, path: "/api/v1/caches/numbers/entries/1", status: http.StatusConflict},
		{name: "不存在的缓存", method: http.MethodGet, path: "/api/v1/caches/missing/entries/1", status: http.StatusNotFound},
		{name: "删除", method: http.MethodDelete, path: "/api/v1/caches/pages/entries/home", status: http.StatusNoContent},
		{name: "重复删除", method: http.MethodDelete, path: "/api/v1/caches/pages/entries/home", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestPutEntry_TTLAndPriority(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/v1/caches/pages/entries/short", `{"value":"v","ttl":"1ms","priority":"low"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var entry EntryResponse
	decode(t, w, &entry)
	assert.Equal(t, EntryResponse{Key: "short", Value: "v"}, entry)

	time.Sleep(5 * time.Millisecond)
	w = env.do(t, http.MethodPost, "/api/v1/caches/pages/cleanup", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]int
	decode(t, w, &body)
	assert.Equal(t, 1, body["expired"])
}

func TestStatsAndReport(t *testing.T) {
	env := newTestEnv(t)
	env.store.Insert("a", "1", 0)
	env.store.Get("a")
	env.store.Get("b")

	w := env.do(t, http.MethodGet, "/api/v1/caches/pages/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Name  string              `json:"name"`
		Stats cache.StatsSnapshot `json:"stats"`
	}
	decode(t, w, &body)
	assert.Equal(t, "pages", body.Name)
	assert.Equal(t, uint64(1), body.Stats.TotalHits)
	assert.Equal(t, uint64(1), body.Stats.TotalMisses)

	w = env.do(t, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var global struct {
		Global cache.StatsSnapshot            `json:"global"`
		Caches map[string]cache.StatsSnapshot `json:"caches"`
	}
	decode(t, w, &global)
	assert.Equal(t, 1, global.Global.TotalEntries)
	assert.Len(t, global.Caches, 2)

	w = env.do(t, http.MethodGet, "/api/v1/caches/pages/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pages")

	w = env.do(t, http.MethodGet, "/api/v1/caches/missing/stats", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClear(t *testing.T) {
	env := newTestEnv(t)
	env.store.Insert("a", "1", 0)

	w := env.do(t, http.MethodPost, "/api/v1/caches/pages/clear", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, env.store.Size())
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.store.Insert("a", "1", 0)
	env.store.Get("a")

	w := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cachecore_cache_hits_total{cache="pages"} 1`)
}
