package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/infrastructure/storage"
)

type stubBatch struct {
	mu    sync.Mutex
	items []domain.NewsItem
	block chan struct{}
}

func (s *stubBatch) FetchAll(ctx context.Context) ([]domain.NewsItem, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items, nil
}

type stubGen struct {
	textErr  error
	imageErr error
	texts    atomic.Int64
	images   atomic.Int64
}

func (g *stubGen) GenerateText(context.Context, domain.TextRequest) (string, string, error) {
	g.texts.Add(1)
	if g.textErr != nil {
		return "", "", g.textErr
	}
	return "a tidy summary", "stub-text", nil
}

func (g *stubGen) GenerateImage(context.Context, string) (string, string, error) {
	g.images.Add(1)
	if g.imageErr != nil {
		return "", "", g.imageErr
	}
	return "https://img.example/1.png", "stub-image", nil
}

type stubPublisher struct {
	mu    sync.Mutex
	posts []domain.Post
	err   error
}

func (p *stubPublisher) Publish(_ context.Context, post domain.Post) (domain.PublishedRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return domain.PublishedRef{}, p.err
	}
	p.posts = append(p.posts, post)
	return domain.PublishedRef{PostID: "42", URL: "https://page.example/posts/42", PostedAt: time.Now()}, nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

func item(id string) domain.NewsItem {
	return domain.NewsItem{
		SourceID:    "feed",
		ExternalID:  id,
		Title:       "Story " + id,
		Body:        "Body " + id,
		URL:         "https://news.example/" + id,
		ContentHash: "hash-" + id,
		PublishedAt: time.Now(),
	}
}

func testCoordinator(src BatchSource, gen Generator, pub *stubPublisher, store *storage.MemoryStore, cfg Config) *Coordinator {
	c := New(Deps{
		Source:    src,
		Generator: gen,
		Publisher: pub,
		Store:     store,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cfg)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func testStore() *storage.MemoryStore {
	return storage.NewMemoryStore(14*24*time.Hour, 30*time.Minute)
}

func TestRunCycleProcessesBatch(t *testing.T) {
	t.Parallel()

	src := &stubBatch{items: []domain.NewsItem{item("a"), item("b")}}
	gen := &stubGen{}
	pub := &stubPublisher{}
	store := testStore()

	c := testCoordinator(src, gen, pub, store, Config{Concurrency: 2})
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	stats := c.Stats()
	if stats.Admitted != 2 || stats.Completed != 2 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if pub.count() != 2 {
		t.Fatalf("expected 2 publishes, got %d", pub.count())
	}

	posts, err := store.RecentCompleted(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentCompleted: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 archived posts, got %d", len(posts))
	}
	if posts[0].Summary != "a tidy summary" {
		t.Fatalf("summary not persisted: %q", posts[0].Summary)
	}
}

func TestCompletedItemIsNotRepublished(t *testing.T) {
	t.Parallel()

	src := &stubBatch{items: []domain.NewsItem{item("a")}}
	gen := &stubGen{}
	pub := &stubPublisher{}
	store := testStore()

	c := testCoordinator(src, gen, pub, store, Config{})
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if pub.count() != 1 {
		t.Fatalf("item published %d times, want 1", pub.count())
	}
	if got := c.Stats().Skipped; got != 1 {
		t.Fatalf("second cycle should skip the claim conflict, got %d", got)
	}
}

func TestRetryExhaustionLeavesItemReattemptable(t *testing.T) {
	t.Parallel()

	src := &stubBatch{items: []domain.NewsItem{item("a")}}
	gen := &stubGen{textErr: errors.New("model down")}
	pub := &stubPublisher{}
	store := testStore()

	c := testCoordinator(src, gen, pub, store, Config{MaxAttempts: 3})
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if got := c.Stats().Failed; got != 1 {
		t.Fatalf("expected 1 failed task, got %d", got)
	}
	if got := gen.texts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if pub.count() != 0 {
		t.Fatal("failed task must not publish")
	}

	// A failed entry does not block the key; the next cycle retries it.
	gen.textErr = nil
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("recovery cycle: %v", err)
	}
	if pub.count() != 1 {
		t.Fatalf("recovered item should publish once, got %d", pub.count())
	}
}

func TestFatalPublishErrorSkipsRetries(t *testing.T) {
	t.Parallel()

	src := &stubBatch{items: []domain.NewsItem{item("a")}}
	gen := &stubGen{}
	pub := &stubPublisher{err: &domain.PublishFailure{Fatal: true, Err: errors.New("session expired")}}
	store := testStore()

	c := testCoordinator(src, gen, pub, store, Config{MaxAttempts: 3})
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if got := c.Stats().Failed; got != 1 {
		t.Fatalf("expected 1 failed task, got %d", got)
	}
	if got := gen.texts.Load(); got != 1 {
		t.Fatalf("summarize should run once, got %d", got)
	}
}

func TestIllustrationFailurePublishesTextOnly(t *testing.T) {
	t.Parallel()

	src := &stubBatch{items: []domain.NewsItem{item("a")}}
	gen := &stubGen{imageErr: errors.New("image model down")}
	pub := &stubPublisher{}
	store := testStore()

	c := testCoordinator(src, gen, pub, store, Config{MaxAttempts: 2, GenerateImages: true})
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if got := c.Stats().Completed; got != 1 {
		t.Fatalf("expected task to complete without image, got stats %+v", c.Stats())
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.posts) != 1 || pub.posts[0].ImageRef != "" {
		t.Fatalf("expected one text-only post, got %+v", pub.posts)
	}
}

func TestRequiredImageFailureFailsTask(t *testing.T) {
	t.Parallel()

	src := &stubBatch{items: []domain.NewsItem{item("a")}}
	gen := &stubGen{imageErr: errors.New("image model down")}
	pub := &stubPublisher{}
	store := testStore()

	c := testCoordinator(src, gen, pub, store, Config{MaxAttempts: 2, GenerateImages: true, RequireImage: true})
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}

	if got := c.Stats().Failed; got != 1 {
		t.Fatalf("expected failed task, got stats %+v", c.Stats())
	}
	if pub.count() != 0 {
		t.Fatal("nothing should publish when a required image is missing")
	}
}

func TestConcurrentTriggerRejected(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	src := &stubBatch{block: block}
	c := testCoordinator(src, &stubGen{}, &stubPublisher{}, testStore(), Config{})

	done := make(chan error, 1)
	go func() { done <- c.RunCycle(context.Background()) }()

	// Wait for the first cycle to take the guard.
	for !c.Busy() {
		time.Sleep(time.Millisecond)
	}

	if err := c.RunCycle(context.Background()); !errors.Is(err, domain.ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first cycle: %v", err)
	}
}
