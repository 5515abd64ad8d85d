package cache

import (
	"context"
	"errors"
	"testing"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

type fixedFeed struct {
	quote domain.Quote
	err   error
	calls int
}

func (f *fixedFeed) Quote(context.Context, string) (domain.Quote, error) {
	f.calls++
	return f.quote, f.err
}

func TestNilCacheIsSafe(t *testing.T) {
	t.Parallel()

	var c *Cache
	ctx := context.Background()

	if err := c.PushPost(ctx, domain.CompletedPost{Title: "x"}); err != nil {
		t.Fatalf("PushPost on nil cache: %v", err)
	}
	if posts, err := c.RecentPosts(ctx, 5); err != nil || posts != nil {
		t.Fatalf("RecentPosts on nil cache: %v %v", posts, err)
	}
	if err := c.SetQuote(ctx, domain.Quote{Symbol: "AAPL"}); err != nil {
		t.Fatalf("SetQuote on nil cache: %v", err)
	}
	if _, ok := c.GetQuote(ctx, "AAPL"); ok {
		t.Fatal("nil cache must always miss")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil cache: %v", err)
	}
}

func TestNewWithoutAddrDisablesCache(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c != nil {
		t.Fatal("empty addr should return a nil cache")
	}
}

type fixedStore struct {
	ports.DedupStore
	posts []domain.CompletedPost
	calls int
}

func (s *fixedStore) RecentCompleted(context.Context, int) ([]domain.CompletedPost, error) {
	s.calls++
	return s.posts, nil
}

func TestArchiveFallsBackToStore(t *testing.T) {
	t.Parallel()

	store := &fixedStore{posts: []domain.CompletedPost{{Title: "archived"}}}
	arch := NewArchive(store, nil)

	posts, err := arch.RecentCompleted(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentCompleted: %v", err)
	}
	if len(posts) != 1 || posts[0].Title != "archived" {
		t.Fatalf("unexpected posts: %+v", posts)
	}
	if store.calls != 1 {
		t.Fatalf("store queried %d times, want 1", store.calls)
	}
}

func TestCachedFeedPassesThroughWithoutCache(t *testing.T) {
	t.Parallel()

	feed := &fixedFeed{quote: domain.Quote{Symbol: "AAPL", Value: 123}}
	cached := NewCachedFeed(feed, nil)

	q, err := cached.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Value != 123 || feed.calls != 1 {
		t.Fatalf("unexpected passthrough: %+v calls=%d", q, feed.calls)
	}

	feed.err = errors.New("feed down")
	if _, err := cached.Quote(context.Background(), "AAPL"); err == nil {
		t.Fatal("feed error should propagate")
	}
}
