package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// Monitor evaluates persisted alert rules against the price feed. It runs on
// its own timer and shares nothing with the news pipeline beyond the
// notification channel.
type Monitor struct {
	repo     ports.AlertRepository
	feed     ports.PriceFeed
	notifier ports.Notifier
	logger   *slog.Logger
	cooldown time.Duration
	now      func() time.Time
}

// New wires the monitor; cooldown is the default applied to new rules.
func New(repo ports.AlertRepository, feed ports.PriceFeed, notifier ports.Notifier, cooldown time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		repo:     repo,
		feed:     feed,
		notifier: notifier,
		logger:   logger,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// CheckAll runs one evaluation pass. Each symbol is quoted once per pass;
// a rule fires at most once per cooldown window. Feed errors are logged per
// symbol and never abort the pass.
func (m *Monitor) CheckAll(ctx context.Context) {
	rules, err := m.repo.List(ctx)
	if err != nil {
		m.logger.Error("listing alert rules failed", "error", err)
		return
	}
	if len(rules) == 0 {
		return
	}

	quotes := map[string]domain.Quote{}
	for _, rule := range rules {
		if _, ok := quotes[rule.Symbol]; ok {
			continue
		}
		quote, err := m.feed.Quote(ctx, rule.Symbol)
		if err != nil {
			m.logger.Warn("quote fetch failed", "symbol", rule.Symbol, "error", err)
			continue
		}
		quotes[rule.Symbol] = quote
	}

	now := m.now()
	for _, rule := range rules {
		quote, ok := quotes[rule.Symbol]
		if !ok {
			continue
		}
		if !rule.Due(now) || !rule.Matches(quote.Value) {
			continue
		}

		if err := m.notifier.Notify(ctx, formatAlert(rule, quote)); err != nil {
			m.logger.Error("alert notification failed", "symbol", rule.Symbol, "error", err)
			continue
		}
		if err := m.repo.MarkTriggered(ctx, rule.ID, now); err != nil {
			m.logger.Error("persisting alert trigger failed", "symbol", rule.Symbol, "error", err)
		}
		m.logger.Info("alert fired", "symbol", rule.Symbol, "price", quote.Value, "threshold", rule.Threshold)
	}
}

// AddRule validates and stores a new rule, applying the default cooldown.
func (m *Monitor) AddRule(ctx context.Context, symbol string, direction domain.AlertDirection, threshold float64) (domain.AlertRule, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return domain.AlertRule{}, fmt.Errorf("symbol is required")
	}
	if direction != domain.DirectionAbove && direction != domain.DirectionBelow {
		return domain.AlertRule{}, fmt.Errorf("direction must be above or below")
	}
	if threshold <= 0 {
		return domain.AlertRule{}, fmt.Errorf("threshold must be positive")
	}

	rule := domain.AlertRule{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Threshold: threshold,
		Direction: direction,
		Cooldown:  m.cooldown,
		CreatedAt: m.now(),
	}
	if err := m.repo.Add(ctx, rule); err != nil {
		return domain.AlertRule{}, fmt.Errorf("store alert rule: %w", err)
	}
	return rule, nil
}

// Rules lists the stored rules for status views.
func (m *Monitor) Rules(ctx context.Context) ([]domain.AlertRule, error) {
	return m.repo.List(ctx)
}

func formatAlert(rule domain.AlertRule, quote domain.Quote) string {
	arrow := "above"
	if rule.Direction == domain.DirectionBelow {
		arrow = "below"
	}
	return fmt.Sprintf("Price alert: %s is %.2f, %s your threshold of %.2f",
		rule.Symbol, quote.Value, arrow, rule.Threshold)
}
