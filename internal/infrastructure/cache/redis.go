package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"NewsDesk/internal/domain"
)

const (
	recentKey   = "newsdesk:recent"
	recentLimit = 20
	recentTTL   = 5 * time.Minute
	quoteTTL    = time.Minute
)

// Cache layers Redis over the post archive and the price feed. A nil
// *Cache is valid and disables caching, so callers never branch on
// whether Redis is configured.
type Cache struct {
	rdb *redis.Client
}

// New connects to Redis. Empty addr returns a nil cache.
func New(ctx context.Context, addr string) (*Cache, error) {
	if addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Cache{rdb: rdb}, nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// PushPost records a completed post at the head of the recent list.
func (c *Cache) PushPost(ctx context.Context, post domain.CompletedPost) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(post)
	if err != nil {
		return err
	}
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, recentKey, raw)
	pipe.LTrim(ctx, recentKey, 0, recentLimit-1)
	pipe.Expire(ctx, recentKey, recentTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentPosts returns the newest posts, up to limit.
func (c *Cache) RecentPosts(ctx context.Context, limit int) ([]domain.CompletedPost, error) {
	if c == nil {
		return nil, nil
	}
	if limit <= 0 || limit > recentLimit {
		limit = recentLimit
	}
	raws, err := c.rdb.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	posts := make([]domain.CompletedPost, 0, len(raws))
	for _, raw := range raws {
		var post domain.CompletedPost
		if err := json.Unmarshal([]byte(raw), &post); err != nil {
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// SetQuote stores a price snapshot with a short TTL.
func (c *Cache) SetQuote(ctx context.Context, q domain.Quote) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, quoteKey(q.Symbol), raw, quoteTTL).Err()
}

// GetQuote returns a cached quote, or ok=false on miss or expiry.
func (c *Cache) GetQuote(ctx context.Context, symbol string) (domain.Quote, bool) {
	if c == nil {
		return domain.Quote{}, false
	}
	raw, err := c.rdb.Get(ctx, quoteKey(symbol)).Bytes()
	if err != nil {
		return domain.Quote{}, false
	}
	var q domain.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Quote{}, false
	}
	return q, true
}

func quoteKey(symbol string) string {
	return "newsdesk:quote:" + symbol
}
