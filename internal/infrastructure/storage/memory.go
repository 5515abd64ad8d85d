package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// MemoryStore is the in-process DedupStore used by tests and by runs without
// a configured database. Semantics mirror the Postgres store exactly:
// Claim is a check-and-set over the tri-state outcome, Release restores
// never-attempted, MarkFailed leaves the key re-attemptable.
type MemoryStore struct {
	mu        sync.Mutex
	byKey     map[domain.DedupKey]*memEntry
	retention time.Duration
	claimTTL  time.Duration
	now       func() time.Time
}

type memEntry struct {
	key       domain.DedupKey
	hash      string
	title     string
	url       string
	outcome   domain.Outcome
	reason    string
	summary   string
	ref       domain.PublishedRef
	firstSeen time.Time
	updated   time.Time
}

var _ ports.DedupStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store with the given policy windows.
func NewMemoryStore(retention, claimTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		byKey:     map[domain.DedupKey]*memEntry{},
		retention: retention,
		claimTTL:  claimTTL,
		now:       time.Now,
	}
}

// Seen reports whether the key or content hash is blocked from re-admission.
func (s *MemoryStore) Seen(_ context.Context, key domain.DedupKey, contentHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocking(key, contentHash) != nil, nil
}

// Claim atomically reserves the key for one task.
func (s *MemoryStore) Claim(_ context.Context, item domain.NewsItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocking(item.Key(), item.ContentHash) != nil {
		return false, nil
	}

	now := s.now()
	existing := s.byKey[item.Key()]
	if existing != nil {
		existing.outcome = domain.OutcomeActive
		existing.reason = ""
		existing.updated = now
		return true, nil
	}

	s.byKey[item.Key()] = &memEntry{
		key:       item.Key(),
		hash:      item.ContentHash,
		title:     item.Title,
		url:       item.URL,
		outcome:   domain.OutcomeActive,
		firstSeen: now,
		updated:   now,
	}
	return true, nil
}

// Release drops an active claim, restoring the key to never-attempted.
func (s *MemoryStore) Release(_ context.Context, key domain.DedupKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byKey[key]; ok && e.outcome == domain.OutcomeActive {
		delete(s.byKey, key)
	}
	return nil
}

// MarkFailed downgrades the entry so a later cycle may re-attempt it.
func (s *MemoryStore) MarkFailed(_ context.Context, key domain.DedupKey, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byKey[key]
	if !ok {
		return nil
	}
	e.outcome = domain.OutcomeFailed
	e.reason = reason
	e.updated = s.now()
	return nil
}

// Finalize records a successful publish, permanently blocking the key within
// the retention window.
func (s *MemoryStore) Finalize(_ context.Context, key domain.DedupKey, summary string, ref domain.PublishedRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byKey[key]
	if !ok {
		e = &memEntry{key: key, firstSeen: s.now()}
		s.byKey[key] = e
	}
	e.outcome = domain.OutcomeSucceeded
	e.summary = summary
	e.ref = ref
	e.updated = s.now()
	return nil
}

// RecentCompleted lists the latest succeeded entries, newest first.
func (s *MemoryStore) RecentCompleted(_ context.Context, limit int) ([]domain.CompletedPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var done []*memEntry
	for _, e := range s.byKey {
		if e.outcome == domain.OutcomeSucceeded {
			done = append(done, e)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].updated.After(done[j].updated) })
	if limit > 0 && len(done) > limit {
		done = done[:limit]
	}

	posts := make([]domain.CompletedPost, 0, len(done))
	for _, e := range done {
		posts = append(posts, domain.CompletedPost{
			Title:       e.title,
			Summary:     e.summary,
			SourceURL:   e.url,
			Published:   e.ref,
			CompletedAt: e.updated,
		})
	}
	return posts, nil
}

// blocking returns the entry that prevents (re-)admission, or nil. Failed
// entries never block; stale active claims (older than claimTTL, e.g. after
// a crash) and succeeded entries past retention stop blocking.
func (s *MemoryStore) blocking(key domain.DedupKey, contentHash string) *memEntry {
	now := s.now()
	check := func(e *memEntry) bool {
		switch e.outcome {
		case domain.OutcomeActive:
			return now.Sub(e.updated) < s.claimTTL
		case domain.OutcomeSucceeded:
			return s.retention <= 0 || now.Sub(e.updated) < s.retention
		}
		return false
	}

	if e, ok := s.byKey[key]; ok && check(e) {
		return e
	}
	if contentHash != "" {
		for _, e := range s.byKey {
			if e.hash == contentHash && e.key != key && check(e) {
				return e
			}
		}
	}
	return nil
}

// MemoryAlerts is the in-process AlertRepository counterpart.
type MemoryAlerts struct {
	mu    sync.Mutex
	rules map[string]domain.AlertRule
}

var _ ports.AlertRepository = (*MemoryAlerts)(nil)

// NewMemoryAlerts builds an empty repository.
func NewMemoryAlerts() *MemoryAlerts {
	return &MemoryAlerts{rules: map[string]domain.AlertRule{}}
}

// List returns all rules ordered by creation time.
func (m *MemoryAlerts) List(_ context.Context) ([]domain.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rules := make([]domain.AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.Before(rules[j].CreatedAt) })
	return rules, nil
}

// Add stores a new rule.
func (m *MemoryAlerts) Add(_ context.Context, rule domain.AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	return nil
}

// MarkTriggered updates the cooldown anchor for a fired rule.
func (m *MemoryAlerts) MarkTriggered(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rules[id]; ok {
		r.LastTriggeredAt = at
		m.rules[id] = r
	}
	return nil
}
