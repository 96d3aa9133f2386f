package cache

import (
	cerr "cachecore/pkg/error"
)

// CacheError 缓存库返回的类型化错误。
type CacheError struct {
	cerr.BaseError
}

const (
	// ErrCodeKeyNotFound 表示要求键存在的操作未找到该键。
	ErrCodeKeyNotFound cerr.ErrorCode = "KEY_NOT_FOUND"
	// ErrCodeCapacityMisconfigured 表示容量相关配置无法满足所选策略。
	ErrCodeCapacityMisconfigured cerr.ErrorCode = "CAPACITY_MISCONFIGURED"
	// ErrCodeSerializationFailure 表示估算大小或压缩时无法序列化值。
	ErrCodeSerializationFailure cerr.ErrorCode = "SERIALIZATION_FAILURE"
	// ErrCodeConfigInvalid 表示配置无效。
	ErrCodeConfigInvalid cerr.ErrorCode = "CONFIG_INVALID"
	// ErrCodeCacheNotFound 表示管理器中不存在指定名称的缓存。
	ErrCodeCacheNotFound cerr.ErrorCode = "CACHE_NOT_FOUND"
	// ErrCodeCacheExists 表示管理器中已存在同名缓存。
	ErrCodeCacheExists cerr.ErrorCode = "CACHE_EXISTS"
	// ErrCodeCacheClosed 表示缓存已关闭。
	ErrCodeCacheClosed cerr.ErrorCode = "CACHE_CLOSED"
	// ErrCodeLoadFailed 表示回源加载函数失败或熔断器拒绝了请求。
	ErrCodeLoadFailed cerr.ErrorCode = "LOAD_FAILED"
)

var (
	ErrKeyNotFound           = NewCacheError(ErrCodeKeyNotFound, "cache entry not found")
	ErrCapacityMisconfigured = NewCacheError(ErrCodeCapacityMisconfigured, "capacity misconfigured")
	ErrSerializationFailure  = NewCacheError(ErrCodeSerializationFailure, "value serialization failed")
	ErrConfigInvalid         = NewCacheError(ErrCodeConfigInvalid, "invalid cache configuration")
	ErrCacheNotFound         = NewCacheError(ErrCodeCacheNotFound, "cache not registered")
	ErrCacheExists           = NewCacheError(ErrCodeCacheExists, "cache already registered")
	ErrCacheClosed           = NewCacheError(ErrCodeCacheClosed, "cache closed")
	ErrLoadFailed            = NewCacheError(ErrCodeLoadFailed, "load failed")
)

func NewCacheError(code cerr.ErrorCode, message string) *CacheError {
	return &CacheError{
		BaseError: *cerr.NewError(code, message),
	}
}

// WrapCacheError 用指定代码包装一个底层错误。
func WrapCacheError(code cerr.ErrorCode, message string, cause error) *CacheError {
	return &CacheError{
		BaseError: *cerr.WrapError(code, message, cause),
	}
}

// WithContext 附加上下文并返回自身，便于链式调用。
func (e *CacheError) WithContext(key string, value interface{}) *CacheError {
	e.BaseError.WithContext(key, value)
	return e
}
