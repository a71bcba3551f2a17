package dnsresolver

import (
	"context"
	"testing"
	"time"
)

func TestCachingResolver_ResolveTXTIsCached(t *testing.T) {
	inner := New(nil, time.Second)
	cached := NewCaching(inner, time.Minute, time.Minute)

	ctx := context.Background()
	_, err1 := cached.ResolveTXT(ctx, "example.invalid")
	_, err2 := cached.ResolveTXT(ctx, "example.invalid")

	if err1 == nil && err2 == nil {
		if _, ok := cached.cache.Get(cacheKey("txt", "example.invalid")); !ok {
			t.Fatalf("expected cache entry after first successful lookup")
		}
	}
}

func TestCacheKey_DistinguishesOperations(t *testing.T) {
	if cacheKey("cname", "x") == cacheKey("mx", "x") {
		t.Fatalf("cache keys for different operations must differ")
	}
}
