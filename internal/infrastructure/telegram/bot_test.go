package telegram

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/infrastructure/storage"
	"NewsDesk/internal/pipeline"
	"NewsDesk/internal/provider"
)

type stubRunner struct {
	busy   bool
	cycles atomic.Int64
	stats  pipeline.CycleStats
}

func (r *stubRunner) RunCycle(context.Context) error {
	r.cycles.Add(1)
	return nil
}

func (r *stubRunner) Busy() bool                 { return r.busy }
func (r *stubRunner) Stats() pipeline.CycleStats { return r.stats }

type stubAlerts struct {
	added []domain.AlertRule
}

func (a *stubAlerts) AddRule(_ context.Context, symbol string, direction domain.AlertDirection, threshold float64) (domain.AlertRule, error) {
	rule := domain.AlertRule{Symbol: symbol, Direction: direction, Threshold: threshold}
	a.added = append(a.added, rule)
	return rule, nil
}

func (a *stubAlerts) Rules(context.Context) ([]domain.AlertRule, error) {
	return a.added, nil
}

type stubBoard struct{}

func (stubBoard) Snapshot() []provider.Status {
	return []provider.Status{{ID: "openai-text", Capability: provider.CapabilityText, WindowUsage: 1, Limit: 10}}
}

func testBot(runner *stubRunner, alerts *stubAlerts) *Bot {
	b := NewBot("token", "1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.Configure(Deps{
		Runner:    runner,
		Alerts:    alerts,
		Store:     storage.NewMemoryStore(time.Hour, time.Minute),
		Providers: stubBoard{},
	})
	return b
}

func TestDispatchHelp(t *testing.T) {
	t.Parallel()

	b := testBot(&stubRunner{}, &stubAlerts{})
	for _, cmd := range []string{"/start", "/help", "/start@newsdeskbot"} {
		if reply := b.dispatch(context.Background(), cmd); !strings.Contains(reply, "/news") {
			t.Fatalf("%s should return help, got %q", cmd, reply)
		}
	}
	if reply := b.dispatch(context.Background(), "/bogus"); !strings.Contains(reply, "Unknown") {
		t.Fatalf("unexpected reply for unknown command: %q", reply)
	}
	if reply := b.dispatch(context.Background(), "plain text"); reply != "" {
		t.Fatalf("non-command text should be ignored, got %q", reply)
	}
}

func TestDispatchAlert(t *testing.T) {
	t.Parallel()

	alerts := &stubAlerts{}
	b := testBot(&stubRunner{}, alerts)

	reply := b.dispatch(context.Background(), "/alert aapl above 150.50")
	if !strings.Contains(reply, "Alert added") {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if len(alerts.added) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(alerts.added))
	}
	rule := alerts.added[0]
	if rule.Symbol != "AAPL" || rule.Direction != domain.DirectionAbove || rule.Threshold != 150.50 {
		t.Fatalf("rule parsed wrong: %+v", rule)
	}

	for _, bad := range []string{
		"/alert",
		"/alert AAPL sideways 100",
		"/alert AAPL above notanumber",
		"/alert AAPL above -5",
	} {
		if reply := b.dispatch(context.Background(), bad); strings.Contains(reply, "Alert added") {
			t.Fatalf("%q should be rejected", bad)
		}
	}
	if len(alerts.added) != 1 {
		t.Fatalf("invalid commands must not add rules, got %d", len(alerts.added))
	}
}

func TestDispatchRun(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	b := testBot(runner, &stubAlerts{})

	if reply := b.dispatch(context.Background(), "/run"); !strings.Contains(reply, "started") {
		t.Fatalf("unexpected reply: %q", reply)
	}

	deadline := time.Now().Add(time.Second)
	for runner.cycles.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if runner.cycles.Load() != 1 {
		t.Fatal("cycle should have been triggered")
	}

	runner.busy = true
	if reply := b.dispatch(context.Background(), "/run"); !strings.Contains(reply, "already running") {
		t.Fatalf("busy runner should be reported, got %q", reply)
	}
}

func TestDispatchDashboard(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{stats: pipeline.CycleStats{
		StartedAt: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC),
		Admitted:  3, Completed: 2, Failed: 1,
	}}
	b := testBot(runner, &stubAlerts{})

	reply := b.dispatch(context.Background(), "/dashboard")
	if !strings.Contains(reply, "admitted 3") || !strings.Contains(reply, "completed 2") {
		t.Fatalf("cycle stats missing: %q", reply)
	}
	if !strings.Contains(reply, "openai-text") || !strings.Contains(reply, "1/10") {
		t.Fatalf("provider status missing: %q", reply)
	}
}

func TestDispatchNewsEmpty(t *testing.T) {
	t.Parallel()

	b := testBot(&stubRunner{}, &stubAlerts{})
	if reply := b.dispatch(context.Background(), "/news"); !strings.Contains(reply, "Nothing published") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestDispatchMarketUnconfigured(t *testing.T) {
	t.Parallel()

	b := testBot(&stubRunner{}, &stubAlerts{})
	if reply := b.dispatch(context.Background(), "/market"); !strings.Contains(reply, "not configured") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}
