package provider

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// Capability partitions profiles by what they can produce.
type Capability string

const (
	CapabilityText  Capability = "text"
	CapabilityImage Capability = "image"
)

const (
	defaultCooldownBase = 30 * time.Second
	defaultCooldownMax  = 15 * time.Minute
)

// Profile binds one concrete generator to its selection policy. All mutable
// fields are guarded by the router's mutex; nothing outside this package
// touches them.
type Profile struct {
	ID         string
	Capability Capability
	Priority   int
	Limit      int
	Window     time.Duration
	Text       ports.TextGenerator
	Image      ports.ImageGenerator

	usage         []time.Time
	cooldownUntil time.Time
	consecutive   int
	successes     int
	failures      int
}

func (p *Profile) pruneWindow(now time.Time) {
	cutoff := now.Add(-p.Window)
	keep := p.usage[:0]
	for _, t := range p.usage {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	p.usage = keep
}

func (p *Profile) successRate() float64 {
	total := p.successes + p.failures
	if total == 0 {
		return 1
	}
	return float64(p.successes) / float64(total)
}

// Status is a read-only snapshot of one profile, served by the dashboard.
type Status struct {
	ID            string
	Capability    Capability
	Priority      int
	WindowUsage   int
	Limit         int
	CoolingDown   bool
	CooldownUntil time.Time
	Successes     int
	Failures      int
}

// Router selects providers per capability, enforcing sliding-window rate
// limits and failure cooldowns. Selection and accounting run in a single
// critical section so concurrent tasks cannot overshoot a window.
type Router struct {
	mu       sync.Mutex
	profiles map[Capability][]*Profile

	cooldownBase time.Duration
	cooldownMax  time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewRouter builds an empty router; register profiles before use.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		profiles:     map[Capability][]*Profile{},
		cooldownBase: defaultCooldownBase,
		cooldownMax:  defaultCooldownMax,
		logger:       logger,
		now:          time.Now,
	}
}

// Register adds a profile to its capability list. A profile whose adapter
// cannot serve its declared capability is rejected so invoke never hits a
// nil generator.
func (r *Router) Register(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(p)
}

// Replace swaps the whole profile set, used for configuration reload.
// Usage windows and cooldowns start fresh for the new set.
func (r *Router) Replace(profiles []*Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles = map[Capability][]*Profile{}
	for _, p := range profiles {
		r.register(p)
	}
}

func (r *Router) register(p *Profile) {
	if (p.Capability == CapabilityText && p.Text == nil) ||
		(p.Capability == CapabilityImage && p.Image == nil) {
		r.logger.Warn("profile has no generator for its capability, not registering",
			"provider", p.ID, "capability", p.Capability)
		return
	}
	r.profiles[p.Capability] = append(r.profiles[p.Capability], p)
}

// GenerateText routes a text request through the eligible profiles, falling
// back in rank order until one succeeds. Returns the output and the id of the
// provider that produced it.
func (r *Router) GenerateText(ctx context.Context, req domain.TextRequest) (string, string, error) {
	return r.invoke(ctx, CapabilityText, func(p *Profile) (string, error) {
		return p.Text.Generate(ctx, req)
	})
}

// GenerateImage routes an illustration request the same way.
func (r *Router) GenerateImage(ctx context.Context, prompt string) (string, string, error) {
	return r.invoke(ctx, CapabilityImage, func(p *Profile) (string, error) {
		return p.Image.Render(ctx, prompt)
	})
}

func (r *Router) invoke(ctx context.Context, capability Capability, call func(*Profile) (string, error)) (string, string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		p := r.reserve(capability)
		if p == nil {
			return "", "", domain.ErrNoProviderAvailable
		}

		out, err := call(p)
		if err != nil {
			kind := classify(err)
			cooldown := r.markFailure(p, kind)
			r.logger.Warn("provider invocation failed",
				"provider", p.ID, "kind", string(kind), "cooldown", cooldown, "error", err)
			continue
		}

		r.markSuccess(p)
		return out, p.ID, nil
	}
}

// reserve picks the first eligible profile by priority rank, then recent
// success rate, and records a usage slot against its window before the
// network call is made.
func (r *Router) reserve(capability Capability) *Profile {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	ordered := make([]*Profile, len(r.profiles[capability]))
	copy(ordered, r.profiles[capability])
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].successRate() > ordered[j].successRate()
	})

	for _, p := range ordered {
		if now.Before(p.cooldownUntil) {
			continue
		}
		p.pruneWindow(now)
		if p.Limit > 0 && len(p.usage) >= p.Limit {
			continue
		}
		p.usage = append(p.usage, now)
		return p
	}

	return nil
}

func (r *Router) markFailure(p *Profile, kind domain.FailureKind) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.consecutive++
	p.failures++

	cooldown := r.cooldownBase << (p.consecutive - 1)
	if kind == domain.FailureQuota {
		// Quota errors mean the whole window is burnt; start further out.
		cooldown = max(cooldown, p.Window)
	}
	if cooldown > r.cooldownMax || cooldown <= 0 {
		cooldown = r.cooldownMax
	}
	p.cooldownUntil = r.now().Add(cooldown)
	return cooldown
}

func (r *Router) markSuccess(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.consecutive = 0
	p.cooldownUntil = time.Time{}
	p.successes++
}

// Snapshot reports per-profile state for the dashboard view.
func (r *Router) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var statuses []Status
	for _, caps := range [...]Capability{CapabilityText, CapabilityImage} {
		for _, p := range r.profiles[caps] {
			p.pruneWindow(now)
			statuses = append(statuses, Status{
				ID:            p.ID,
				Capability:    p.Capability,
				Priority:      p.Priority,
				WindowUsage:   len(p.usage),
				Limit:         p.Limit,
				CoolingDown:   now.Before(p.cooldownUntil),
				CooldownUntil: p.cooldownUntil,
				Successes:     p.successes,
				Failures:      p.failures,
			})
		}
	}
	return statuses
}

func classify(err error) domain.FailureKind {
	var pf *domain.ProviderFailure
	if errors.As(err, &pf) {
		return pf.Kind
	}
	return domain.FailureUnavailable
}
