package routes

import (
	"context"
	"time"

	"github.com/bluele/gcache"
)

// CachingProvider wraps another Provider with an LRU cache so hot routes do
// not hit the backing collaborator on every fix.
type CachingProvider struct {
	inner Provider
	cache gcache.Cache
}

func NewCachingProvider(inner Provider, size int, ttl time.Duration) *CachingProvider {
	builder := gcache.New(size).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &CachingProvider{
		inner: inner,
		cache: builder.Build(),
	}
}

func (p *CachingProvider) RoutePath(ctx context.Context, routeID string) (*RoutePath, error) {
	if cached, err := p.cache.Get(routeID); err == nil {
		return cached.(*RoutePath), nil
	}

	path, err := p.inner.RoutePath(ctx, routeID)
	if err != nil {
		return nil, err
	}

	_ = p.cache.Set(routeID, path)
	return path, nil
}

func (p *CachingProvider) IsBidirectional(ctx context.Context, routeID string) (bool, error) {
	path, err := p.RoutePath(ctx, routeID)
	if err != nil {
		return false, err
	}
	return path.Bidirectional, nil
}
