package ports

import (
	"context"
	"time"

	"NewsDesk/internal/domain"
)

// NewsSource pulls one batch of fresh items from an upstream provider.
// A call is one poll cycle; implementations return a finite slice.
type NewsSource interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.NewsItem, error)
}

// DedupStore persists processed-item state across restarts. Claim is an
// atomic check-and-set: it succeeds only when no other task owns the key and
// the key has not succeeded within the retention window.
type DedupStore interface {
	Seen(ctx context.Context, key domain.DedupKey, contentHash string) (bool, error)
	Claim(ctx context.Context, item domain.NewsItem) (bool, error)
	Release(ctx context.Context, key domain.DedupKey) error
	MarkFailed(ctx context.Context, key domain.DedupKey, reason string) error
	Finalize(ctx context.Context, key domain.DedupKey, summary string, ref domain.PublishedRef) error
	RecentCompleted(ctx context.Context, limit int) ([]domain.CompletedPost, error)
}

// AlertRepository persists market-alert rules.
type AlertRepository interface {
	List(ctx context.Context) ([]domain.AlertRule, error)
	Add(ctx context.Context, rule domain.AlertRule) error
	MarkTriggered(ctx context.Context, id string, at time.Time) error
}

// TextGenerator produces a completion from one concrete AI provider.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, req domain.TextRequest) (string, error)
}

// ImageGenerator renders an illustration and returns a reference (URL).
type ImageGenerator interface {
	Name() string
	Render(ctx context.Context, prompt string) (string, error)
}

// Publisher posts composed content to the social platform.
type Publisher interface {
	Publish(ctx context.Context, post domain.Post) (domain.PublishedRef, error)
}

// PriceFeed serves current market quotes to the alert checker.
type PriceFeed interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}

// Notifier delivers operator/user-facing messages out of band.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
