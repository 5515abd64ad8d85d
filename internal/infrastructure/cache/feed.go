package cache

import (
	"context"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// CachedFeed serves quotes from the cache first to keep interactive
// lookups off the upstream rate limit.
type CachedFeed struct {
	feed  ports.PriceFeed
	cache *Cache
}

var _ ports.PriceFeed = (*CachedFeed)(nil)

// NewCachedFeed wraps a feed; a nil cache passes every call through.
func NewCachedFeed(feed ports.PriceFeed, cache *Cache) *CachedFeed {
	return &CachedFeed{feed: feed, cache: cache}
}

// Quote returns a cached snapshot when fresh, otherwise fetches and
// stores one.
func (f *CachedFeed) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	if q, ok := f.cache.GetQuote(ctx, symbol); ok {
		return q, nil
	}
	q, err := f.feed.Quote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	_ = f.cache.SetQuote(ctx, q)
	return q, nil
}
