package aggregator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// Aggregator runs one poll cycle across all configured sources and returns a
// deduplicated, time-ordered batch of candidate items.
type Aggregator struct {
	sources []ports.NewsSource
	store   ports.DedupStore
	logger  *slog.Logger
	now     func() time.Time
}

// New wires sources with the dedup store used for pre-filtering.
func New(sources []ports.NewsSource, store ports.DedupStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		sources: sources,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// FetchAll polls every source once. A failing source is logged and skipped so
// healthy sources still contribute; individually unusable entries are dropped
// without affecting the rest of their batch. The result is a stable merge in
// ascending PublishedAt order, already filtered against the dedup store.
func (a *Aggregator) FetchAll(ctx context.Context) ([]domain.NewsItem, error) {
	var merged []domain.NewsItem

	for _, src := range a.sources {
		if err := ctx.Err(); err != nil {
			return merged, err
		}

		items, err := src.Fetch(ctx)
		if err != nil {
			a.logger.Warn("source fetch failed, skipping", "source", src.Name(), "error", err)
			continue
		}

		fresh := 0
		for _, item := range items {
			normalized, ok := a.normalize(item, src.Name())
			if !ok {
				a.logger.Debug("dropping unusable entry", "source", src.Name(), "url", item.URL)
				continue
			}

			seen, err := a.store.Seen(ctx, normalized.Key(), normalized.ContentHash)
			if err != nil {
				a.logger.Warn("dedup lookup failed, skipping item", "source", src.Name(), "id", normalized.ExternalID, "error", err)
				continue
			}
			if seen {
				continue
			}

			merged = append(merged, normalized)
			fresh++
		}

		a.logger.Debug("source polled", "source", src.Name(), "items", len(items), "fresh", fresh)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PublishedAt.Before(merged[j].PublishedAt)
	})

	return merged, nil
}

// normalize fills derived fields and rejects entries with no usable identity
// or title.
func (a *Aggregator) normalize(item domain.NewsItem, sourceID string) (domain.NewsItem, bool) {
	now := a.now()

	item.Title = strings.TrimSpace(item.Title)
	item.Body = strings.TrimSpace(item.Body)

	if item.SourceID == "" {
		item.SourceID = sourceID
	}
	if item.ExternalID == "" {
		item.ExternalID = item.URL
	}
	if item.Title == "" || item.ExternalID == "" {
		return domain.NewsItem{}, false
	}

	if item.PublishedAt.IsZero() {
		item.PublishedAt = now
	}
	item.FetchedAt = now
	item.ContentHash = ContentHash(item.Title, item.Body)

	return item, true
}

// ContentHash digests normalized text so near-identical items from different
// sources collapse onto one key. Normalization is lowercasing plus whitespace
// folding; the digest is hex-encoded SHA-256.
func ContentHash(title, body string) string {
	normalized := strings.ToLower(title + "\n" + body)
	normalized = strings.Join(strings.Fields(normalized), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
