package domain

import "time"

// AlertDirection says which side of the threshold fires the rule.
type AlertDirection string

const (
	DirectionAbove AlertDirection = "above"
	DirectionBelow AlertDirection = "below"
)

// AlertRule is a persisted market-price alert, evaluated independently of the
// news pipeline.
type AlertRule struct {
	ID              string
	Symbol          string
	Threshold       float64
	Direction       AlertDirection
	Cooldown        time.Duration
	LastTriggeredAt time.Time
	CreatedAt       time.Time
}

// Matches reports whether the current price satisfies the rule condition.
func (r AlertRule) Matches(price float64) bool {
	switch r.Direction {
	case DirectionAbove:
		return price >= r.Threshold
	case DirectionBelow:
		return price <= r.Threshold
	}
	return false
}

// Due reports whether the cooldown since the last trigger has elapsed.
func (r AlertRule) Due(now time.Time) bool {
	if r.LastTriggeredAt.IsZero() {
		return true
	}
	return now.Sub(r.LastTriggeredAt) >= r.Cooldown
}

// Quote is a single price observation from the price-feed collaborator.
type Quote struct {
	Symbol    string
	Value     float64
	Timestamp time.Time
}
