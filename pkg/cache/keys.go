package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// GenerateKey 将多个组成部分序列化为JSON后以 ';' 连接，返回其 sha256 十六进制摘要。
func GenerateKey(components ...any) string {
	var b strings.Builder
	for i, c := range components {
		if i > 0 {
			b.WriteByte(';')
		}
		data, err := json.Marshal(c)
		if err == nil {
			b.Write(data)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// StructuredKey 返回 "prefix:<digest>" 形式的键。
func StructuredKey(prefix string, data any) string {
	return prefix + ":" + GenerateKey(data)
}

// PathKey 返回 "operation:path" 形式的键。
func PathKey(operation, path string) string {
	return operation + ":" + path
}

// NamespacedKey 为协作层提供的命名空间前缀，如会话或用户ID。
func NamespacedKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + "/" + key
}

// HashKey 计算键的64位哈希，用于分片和策略内部的 key_hash。
func HashKey[K comparable](key K) uint64 {
	switch k := any(key).(type) {
	case string:
		return xxhash.Sum64String(k)
	case []byte:
		return xxhash.Sum64(k)
	case int:
		return mix64(uint64(k))
	case int64:
		return mix64(uint64(k))
	case uint64:
		return mix64(k)
	case int32:
		return mix64(uint64(k))
	case uint32:
		return mix64(uint64(k))
	}
	return xxhash.Sum64String(fmt.Sprintf("%#v", key))
}

// mix64 splitmix64 终结函数，打散整数键。
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// keyString 把键转成字符串，用于 singleflight 分组。
func keyString[K comparable](key K) string {
	if s, ok := any(key).(string); ok {
		return s
	}
	return fmt.Sprintf("%#v", key)
}
