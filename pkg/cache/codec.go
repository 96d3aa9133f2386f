package cache

import (
	"encoding/json"

	"github.com/golang/snappy"
)

const (
	// baseEntryOverhead 条目结构体与map槽位的固定开销估算
	baseEntryOverhead int64 = 96
	// fallbackValueSize 值无法序列化时使用的估算大小
	fallbackValueSize int64 = 64
)

// marshalValue 序列化值。string 和 []byte 直接取字节，其余类型用 JSON。
func marshalValue[V any](v V) ([]byte, error) {
	switch x := any(v).(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	return json.Marshal(v)
}

// unmarshalValue 是 marshalValue 的逆操作。
func unmarshalValue[V any](data []byte) (V, error) {
	var v V
	switch p := any(&v).(type) {
	case *[]byte:
		*p = append([]byte(nil), data...)
		return v, nil
	case *string:
		*p = string(data)
		return v, nil
	}
	err := json.Unmarshal(data, &v)
	return v, err
}

// estimateSize 不序列化的快速估算，用于不关心内存的策略。
func estimateSize[V any](value V) int64 {
	switch v := any(value).(type) {
	case string:
		return int64(len(v))
	case []byte:
		return int64(len(v))
	default:
		return fallbackValueSize
	}
}

// metadataSize 元数据序列化后的长度，空元数据为0。
func metadataSize(metadata map[string]string) int64 {
	if len(metadata) == 0 {
		return 0
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// encodedValue 一次序列化得到的值表示。
type encodedValue struct {
	packed []byte // 压缩后的字节，未压缩时为nil
	size   int64  // 条目估算大小（含开销与元数据）
}

// valueEncoder 计算条目大小并按阈值压缩。
type valueEncoder[V any] struct {
	measure   bool  // 是否需要序列化测量
	threshold int64 // 压缩阈值（字节），0为关闭
}

// encode 计算值的存储形式。序列化失败时返回 SerializationFailure 错误，
// 同时给出使用 fallbackValueSize 的可用结果，调用方记录日志后继续。
func (c valueEncoder[V]) encode(value V, metadata map[string]string) (encodedValue, error) {
	meta := metadataSize(metadata)
	if !c.measure && c.threshold == 0 {
		return encodedValue{size: baseEntryOverhead + estimateSize(value) + meta}, nil
	}

	raw, err := marshalValue(value)
	if err != nil {
		return encodedValue{size: baseEntryOverhead + fallbackValueSize + meta},
			WrapCacheError(ErrCodeSerializationFailure, "cannot serialize value for size estimation", err)
	}

	out := encodedValue{size: baseEntryOverhead + int64(len(raw)) + meta}
	if c.threshold > 0 && int64(len(raw)) >= c.threshold {
		out.packed = snappy.Encode(nil, raw)
		out.size = baseEntryOverhead + int64(len(out.packed)) + meta
	}
	return out, nil
}

// decode 还原压缩存储的值。
func (c valueEncoder[V]) decode(packed []byte) (V, error) {
	raw, err := snappy.Decode(nil, packed)
	if err != nil {
		var zero V
		return zero, WrapCacheError(ErrCodeSerializationFailure, "cannot decompress cached value", err)
	}
	v, err := unmarshalValue[V](raw)
	if err != nil {
		return v, WrapCacheError(ErrCodeSerializationFailure, "cannot decode cached value", err)
	}
	return v, nil
}
