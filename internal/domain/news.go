package domain

import "time"

// NewsItem is a normalized article fetched from one of the configured sources.
// Items are immutable after creation; downstream stages reference them.
type NewsItem struct {
	SourceID    string
	ExternalID  string
	Title       string
	Body        string
	URL         string
	PublishedAt time.Time
	FetchedAt   time.Time
	ContentHash string
}

// Key returns the dedup identity of the item within its source.
func (n NewsItem) Key() DedupKey {
	return DedupKey{SourceID: n.SourceID, ExternalID: n.ExternalID}
}

// DedupKey identifies an item for deduplication. ExternalID is unique per
// source only, so the pair is the real key; cross-source near-duplicates are
// caught by ContentHash instead.
type DedupKey struct {
	SourceID   string
	ExternalID string
}

// Outcome is the persisted tri-state of a dedup entry.
type Outcome string

const (
	// OutcomeActive marks a provisional claim: a task currently owns the item.
	OutcomeActive Outcome = "active"
	// OutcomeSucceeded blocks re-admission within the retention window.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed allows a later cycle to re-attempt the item.
	OutcomeFailed Outcome = "failed"
)

// PublishedRef identifies a post created on the social platform.
type PublishedRef struct {
	PostID   string
	URL      string
	PostedAt time.Time
}

// CompletedPost is an archived pipeline result, served by the command
// interface's latest-news view.
type CompletedPost struct {
	Title       string
	Summary     string
	SourceURL   string
	Published   PublishedRef
	CompletedAt time.Time
}

// Post is the composed content handed to the publish gateway.
type Post struct {
	Text     string
	ImageRef string
}

// TextRequest carries a text-generation call through the provider router.
type TextRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}
