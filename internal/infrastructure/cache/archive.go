package cache

import (
	"context"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// Archive decorates a DedupStore so the latest-news view reads from the
// short-TTL Redis list instead of hitting the database on every command.
type Archive struct {
	ports.DedupStore
	cache *Cache
}

var _ ports.DedupStore = (*Archive)(nil)

// NewArchive wraps a store; a nil cache degrades to plain passthrough.
func NewArchive(store ports.DedupStore, cache *Cache) *Archive {
	return &Archive{DedupStore: store, cache: cache}
}

// RecentCompleted serves cached posts when the list is warm, otherwise
// loads from the store and refills the cache.
func (a *Archive) RecentCompleted(ctx context.Context, limit int) ([]domain.CompletedPost, error) {
	if posts, err := a.cache.RecentPosts(ctx, limit); err == nil && len(posts) > 0 {
		return posts, nil
	}

	posts, err := a.DedupStore.RecentCompleted(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := len(posts) - 1; i >= 0; i-- {
		_ = a.cache.PushPost(ctx, posts[i])
	}
	return posts, nil
}
