package auth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/GoPowerDNS-Admin/GoAuthGate/internal/policy"
)

// DefaultMembershipCacheSize bounds the number of cached closures.
const DefaultMembershipCacheSize = 1024

// CachingResolver memoizes successful lookups of another Resolver for a short TTL
// and coalesces concurrent lookups for the same principal. Failures are never cached.
type CachingResolver struct {
	next    Resolver
	version string
	cache   *expirable.LRU[string, Closure]
	group   singleflight.Group
}

// NewCachingResolver wraps next. Entries are keyed by principal and by the version
// of allowed, so a configuration change never serves stale closures.
func NewCachingResolver(next Resolver, allowed policy.AllowList, ttl time.Duration, size int) *CachingResolver {
	if size <= 0 {
		size = DefaultMembershipCacheSize
	}

	return &CachingResolver{
		next:    next,
		version: allowed.Version(),
		cache:   expirable.NewLRU[string, Closure](size, nil, ttl),
	}
}

// Resolve returns a cached closure or delegates to the wrapped resolver.
// Principals without a stable id are never cached.
func (c *CachingResolver) Resolve(ctx context.Context, accessToken string, p Principal) (Closure, error) {
	if p.StableID == "" {
		return c.next.Resolve(ctx, accessToken, p)
	}

	key := policy.Normalize(p.StableID) + "|" + c.version

	if closure, ok := c.cache.Get(key); ok {
		membershipCacheLookups.WithLabelValues("hit").Inc()
		return closure, nil
	}

	membershipCacheLookups.WithLabelValues("miss").Inc()

	// the shared lookup outlives any single caller; the wrapped resolver bounds it
	shared := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key, func() (any, error) {
		closure, err := c.next.Resolve(shared, accessToken, p)
		if err != nil {
			return nil, err
		}

		c.cache.Add(key, closure)

		return closure, nil
	})

	select {
	case <-ctx.Done():
		return Closure{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Closure{}, res.Err
		}

		closure, _ := res.Val.(Closure)

		return closure, nil
	}
}

// Purge drops all cached closures.
func (c *CachingResolver) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached closures.
func (c *CachingResolver) Len() int {
	return c.cache.Len()
}
