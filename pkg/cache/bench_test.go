package cache

import (
	"strconv"
	"testing"
)

func benchKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = "key-" + strconv.Itoa(i)
	}
	return keys
}

func BenchmarkStore_Get(b *testing.B) {
	s := newTestStore[int](testConfig(PolicyLRU, 0))
	keys := benchKeys(1024)
	for i, k := range keys {
		s.Insert(k, i, 0)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			s.Get(keys[i&1023])
			i++
		}
	})
}

func BenchmarkStore_InsertWithEviction(b *testing.B) {
	keys := benchKeys(4096)
	for _, policy := range AllPolicies() {
		b.Run(string(policy), func(b *testing.B) {
			cfg := testConfig(policy, 1000)
			if policy == PolicySizeBased {
				cfg.MaxMemoryMB = 1
			}
			s := newTestStore[int](cfg)

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				s.Insert(keys[i&4095], i, 0)
			}
		})
	}
}

func BenchmarkHashKey(b *testing.B) {
	b.Run("string", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			HashKey("session:12345")
		}
	})
	b.Run("int", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			HashKey(i)
		}
	})
}
