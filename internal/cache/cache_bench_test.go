package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkInMemoryCache_Get_Hit benchmarks cache Get operation on cache hit.
func BenchmarkInMemoryCache_Get_Hit(b *testing.B) {
	cache := NewInMemoryCache()
	ctx := context.Background()
	_ = cache.Set(ctx, "k", testResult("k", 20), 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Get(ctx, "k")
	}
}

// BenchmarkInMemoryCache_Get_Miss benchmarks cache Get operation on cache miss.
func BenchmarkInMemoryCache_Get_Miss(b *testing.B) {
	cache := NewInMemoryCache()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = cache.Get(ctx, "nonexistent")
	}
}

// BenchmarkInMemoryCache_ConcurrentGet benchmarks parallel reads against the mutex-guarded map.
func BenchmarkInMemoryCache_ConcurrentGet(b *testing.B) {
	cache := NewInMemoryCache()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("loc-%d", i)
		_ = cache.Set(ctx, key, testResult(key, 20), 5*time.Minute)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _, _ = cache.Get(ctx, fmt.Sprintf("loc-%d", i%100))
			i++
		}
	})
}

// BenchmarkTwoTier_Get_FastHit benchmarks the fast-path read through TwoTier.
func BenchmarkTwoTier_Get_FastHit(b *testing.B) {
	ctx := context.Background()
	tt := NewTwoTier(NewInMemoryCache(), newMemDurable(), nil)
	tt.Set(ctx, "k", testResult("k", 20))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tt.Get(ctx, "k")
	}
}
