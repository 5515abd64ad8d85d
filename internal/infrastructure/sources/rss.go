package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// RSSSource polls one RSS/Atom feed.
type RSSSource struct {
	name     string
	feedURL  string
	maxItems int
	parser   *gofeed.Parser
}

var _ ports.NewsSource = (*RSSSource)(nil)

// NewRSSSource builds a source for one feed URL.
func NewRSSSource(name, feedURL string, maxItems int) *RSSSource {
	if maxItems <= 0 {
		maxItems = 20
	}
	return &RSSSource{
		name:     name,
		feedURL:  feedURL,
		maxItems: maxItems,
		parser:   gofeed.NewParser(),
	}
}

// Name identifies the source in logs and dedup keys.
func (s *RSSSource) Name() string { return s.name }

// Fetch parses the feed and maps its items. GUID falls back to the link when
// feeds omit it; entries with neither are dropped by the aggregator.
func (s *RSSSource) Fetch(ctx context.Context) ([]domain.NewsItem, error) {
	feed, err := s.parser.ParseURLWithContext(s.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", s.feedURL, err)
	}

	count := min(len(feed.Items), s.maxItems)
	items := make([]domain.NewsItem, 0, count)
	for _, entry := range feed.Items[:count] {
		id := entry.GUID
		if id == "" {
			id = entry.Link
		}

		var publishedAt time.Time
		if entry.PublishedParsed != nil {
			publishedAt = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			publishedAt = *entry.UpdatedParsed
		}

		body := entry.Description
		if body == "" {
			body = entry.Content
		}

		items = append(items, domain.NewsItem{
			SourceID:    s.name,
			ExternalID:  id,
			Title:       entry.Title,
			Body:        body,
			URL:         entry.Link,
			PublishedAt: publishedAt,
		})
	}

	return items, nil
}
