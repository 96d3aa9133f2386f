package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKey(t *testing.T) {
	k1 := GenerateKey("file.rs", 42, map[string]int{"line": 1})
	k2 := GenerateKey("file.rs", 42, map[string]int{"line": 1})
	k3 := GenerateKey("file.rs", 43, map[string]int{"line": 1})

	assert.Len(t, k1, 64)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	// 组成部分的边界参与摘要
	assert.NotEqual(t, GenerateKey("ab", "c"), GenerateKey("a", "bc"))
}

func TestStructuredAndPathKeys(t *testing.T) {
	assert.Equal(t, "lsp:"+GenerateKey("x"), StructuredKey("lsp", "x"))
	assert.Equal(t, "hover:/src/lib.rs", PathKey("hover", "/src/lib.rs"))
	assert.Equal(t, "session-1/k", NamespacedKey("session-1", "k"))
	assert.Equal(t, "k", NamespacedKey("", "k"))
}

func TestHashKey(t *testing.T) {
	assert.Equal(t, HashKey("abc"), HashKey("abc"))
	assert.NotEqual(t, HashKey("abc"), HashKey("abd"))
	assert.NotEqual(t, HashKey(1), HashKey(2))

	type point struct{ X, Y int }
	assert.Equal(t, HashKey(point{1, 2}), HashKey(point{1, 2}))
	assert.NotEqual(t, HashKey(point{1, 2}), HashKey(point{2, 1}))
}
