package provider

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
)

type stubText struct {
	name  string
	out   string
	err   error
	calls atomic.Int64
}

func (s *stubText) Name() string { return s.name }

func (s *stubText) Generate(context.Context, domain.TextRequest) (string, error) {
	s.calls.Add(1)
	return s.out, s.err
}

func testRouter() *Router {
	return NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func textProfile(id string, priority, limit int, gen *stubText) *Profile {
	return &Profile{
		ID:         id,
		Capability: CapabilityText,
		Priority:   priority,
		Limit:      limit,
		Window:     time.Minute,
		Text:       gen,
	}
}

func TestGenerateTextFallsBackInPriorityOrder(t *testing.T) {
	t.Parallel()

	primary := &stubText{name: "a", err: errors.New("down")}
	backup := &stubText{name: "b", out: "from b"}

	r := testRouter()
	r.Register(textProfile("a", 1, 10, primary))
	r.Register(textProfile("b", 2, 10, backup))

	out, id, err := r.GenerateText(context.Background(), domain.TextRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("GenerateText error: %v", err)
	}
	if out != "from b" || id != "b" {
		t.Fatalf("expected fallback result, got %q from %q", out, id)
	}
	if primary.calls.Load() != 1 {
		t.Fatalf("primary should be tried exactly once, got %d", primary.calls.Load())
	}
}

func TestFailedProviderIsCooledDown(t *testing.T) {
	t.Parallel()

	primary := &stubText{name: "a", err: errors.New("down")}
	backup := &stubText{name: "b", out: "ok"}

	r := testRouter()
	r.Register(textProfile("a", 1, 10, primary))
	r.Register(textProfile("b", 2, 10, backup))

	if _, _, err := r.GenerateText(context.Background(), domain.TextRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, _, err := r.GenerateText(context.Background(), domain.TextRequest{}); err != nil {
		t.Fatalf("second call: %v", err)
	}

	// The second call must go straight to the backup without retrying the
	// cooling-down primary.
	if primary.calls.Load() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.calls.Load())
	}
	if backup.calls.Load() != 2 {
		t.Fatalf("backup called %d times, want 2", backup.calls.Load())
	}

	for _, st := range r.Snapshot() {
		if st.ID == "a" && !st.CoolingDown {
			t.Fatal("failed provider should be cooling down")
		}
	}
}

func TestQuotaFailureSkipsWholeWindow(t *testing.T) {
	t.Parallel()

	quotaErr := &domain.ProviderFailure{Provider: "a", Kind: domain.FailureQuota, Err: errors.New("429")}
	primary := &stubText{name: "a", err: quotaErr}

	r := testRouter()
	p := textProfile("a", 1, 10, primary)
	p.Window = 10 * time.Minute
	r.Register(p)

	start := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return start }

	if _, _, err := r.GenerateText(context.Background(), domain.TextRequest{}); !errors.Is(err, domain.ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}
	if p.cooldownUntil.Before(start.Add(p.Window)) {
		t.Fatalf("quota cooldown %v should cover the window", p.cooldownUntil.Sub(start))
	}
}

func TestSlidingWindowCap(t *testing.T) {
	t.Parallel()

	gen := &stubText{name: "a", out: "ok"}
	r := testRouter()
	r.Register(textProfile("a", 1, 2, gen))

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, _, err := r.GenerateText(context.Background(), domain.TextRequest{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, _, err := r.GenerateText(context.Background(), domain.TextRequest{}); !errors.Is(err, domain.ErrNoProviderAvailable) {
		t.Fatalf("expected window exhaustion, got %v", err)
	}

	// Old usage slides out of the window and capacity returns.
	now = now.Add(2 * time.Minute)
	if _, _, err := r.GenerateText(context.Background(), domain.TextRequest{}); err != nil {
		t.Fatalf("after window slide: %v", err)
	}
}

func TestWindowHoldsUnderConcurrency(t *testing.T) {
	t.Parallel()

	gen := &stubText{name: "a", out: "ok"}
	r := testRouter()
	r.Register(textProfile("a", 1, 3, gen))

	var wg sync.WaitGroup
	var denied atomic.Int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := r.GenerateText(context.Background(), domain.TextRequest{}); err != nil {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	if gen.calls.Load() != 3 {
		t.Fatalf("provider invoked %d times, window allows 3", gen.calls.Load())
	}
	if denied.Load() != 7 {
		t.Fatalf("expected 7 denials, got %d", denied.Load())
	}
}

func TestImageProfileWithoutRendererIsRejected(t *testing.T) {
	t.Parallel()

	// A text-only adapter wrongly declared as an image provider must not
	// be registered; invoking it would dereference a nil renderer.
	r := testRouter()
	r.Register(&Profile{
		ID:         "text-only",
		Capability: CapabilityImage,
		Priority:   1,
		Limit:      10,
		Window:     time.Minute,
		Text:       &stubText{name: "text-only"},
	})

	if _, _, err := r.GenerateImage(context.Background(), "a market chart"); !errors.Is(err, domain.ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}
	if len(r.Snapshot()) != 0 {
		t.Fatalf("rejected profile should not appear in snapshot, got %d entries", len(r.Snapshot()))
	}
}

func TestReplaceSwapsProfileSet(t *testing.T) {
	t.Parallel()

	old := &stubText{name: "old", out: "from old"}
	r := testRouter()
	r.Register(textProfile("old", 1, 10, old))

	fresh := &stubText{name: "fresh", out: "from fresh"}
	r.Replace([]*Profile{textProfile("fresh", 1, 10, fresh)})

	out, id, err := r.GenerateText(context.Background(), domain.TextRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("GenerateText error: %v", err)
	}
	if out != "from fresh" || id != "fresh" {
		t.Fatalf("expected replacement provider, got %q from %q", out, id)
	}
	if old.calls.Load() != 0 {
		t.Fatalf("replaced provider was still invoked %d times", old.calls.Load())
	}
}

func TestNoProfilesRegistered(t *testing.T) {
	t.Parallel()

	r := testRouter()
	if _, _, err := r.GenerateText(context.Background(), domain.TextRequest{}); !errors.Is(err, domain.ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}
	if _, _, err := r.GenerateImage(context.Background(), "x"); !errors.Is(err, domain.ErrNoProviderAvailable) {
		t.Fatalf("expected ErrNoProviderAvailable, got %v", err)
	}
}
