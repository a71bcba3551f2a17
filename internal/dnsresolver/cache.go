package dnsresolver

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachingResolver wraps a Resolver with a short-lived in-memory cache keyed
// by operation and host, absorbing the repeated lookups a single target
// triggers across the immediate intake check, a read-only query, and the
// first scheduler tick that all land within the same few seconds.
type CachingResolver struct {
	inner *Resolver
	cache *gocache.Cache
}

// NewCaching wraps inner with a cache entry lifetime of ttl, swept every
// cleanupInterval.
func NewCaching(inner *Resolver, ttl, cleanupInterval time.Duration) *CachingResolver {
	return &CachingResolver{inner: inner, cache: gocache.New(ttl, cleanupInterval)}
}

func (c *CachingResolver) ResolveCNAME(ctx context.Context, host string) ([]string, error) {
	return cachedLookup(c.cache, "cname", host, func() ([]string, error) { return c.inner.ResolveCNAME(ctx, host) })
}

func (c *CachingResolver) ResolveMX(ctx context.Context, host string) ([]MXRecord, error) {
	key := cacheKey("mx", host)
	if v, ok := c.cache.Get(key); ok {
		return v.([]MXRecord), nil
	}
	out, err := c.inner.ResolveMX(ctx, host)
	if err == nil {
		c.cache.SetDefault(key, out)
	}
	return out, err
}

func (c *CachingResolver) ResolveTXT(ctx context.Context, host string) ([]string, error) {
	return cachedLookup(c.cache, "txt", host, func() ([]string, error) { return c.inner.ResolveTXT(ctx, host) })
}

func (c *CachingResolver) ResolveA4(ctx context.Context, host string) ([]string, error) {
	return cachedLookup(c.cache, "a4", host, func() ([]string, error) { return c.inner.ResolveA4(ctx, host) })
}

func (c *CachingResolver) ResolveA6(ctx context.Context, host string) ([]string, error) {
	return cachedLookup(c.cache, "a6", host, func() ([]string, error) { return c.inner.ResolveA6(ctx, host) })
}

// WalkCNAMEChain is not cached: it is bounded by maxDepth and already
// cheaper than the repeated per-record lookups above.
func (c *CachingResolver) WalkCNAMEChain(ctx context.Context, startHost string, authorizedIPs map[string]bool, maxDepth int) ChainResult {
	return c.inner.WalkCNAMEChain(ctx, startHost, authorizedIPs, maxDepth)
}

func cacheKey(op, host string) string {
	return fmt.Sprintf("%s:%s", op, host)
}

func cachedLookup(cache *gocache.Cache, op, host string, fn func() ([]string, error)) ([]string, error) {
	key := cacheKey(op, host)
	if v, ok := cache.Get(key); ok {
		return v.([]string), nil
	}
	out, err := fn()
	if err == nil {
		cache.SetDefault(key, out)
	}
	return out, err
}
