package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"NewsDesk/internal/domain"
)

// CycleRunner is the coordinator entry point shared by scheduled and manual
// triggers.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// AlertChecker runs one market-alert evaluation pass.
type AlertChecker interface {
	CheckAll(ctx context.Context)
}

// Scheduler owns the two independent timers. The news cycle runs on a cron
// expression; alert checks run on a plain ticker. They never share a
// goroutine, so a stalled news cycle cannot delay alert checks.
type Scheduler struct {
	cron          *cron.Cron
	newsSpec      string
	alertInterval time.Duration
	runner        CycleRunner
	checker       AlertChecker
	logger        *slog.Logger

	stop     chan struct{}
	started  bool
	stopOnce sync.Once
}

// New builds a scheduler; Start must be called to begin ticking.
func New(newsSpec string, alertInterval time.Duration, loc *time.Location, runner CycleRunner, checker AlertChecker, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithLocation(loc)),
		newsSpec:      newsSpec,
		alertInterval: alertInterval,
		runner:        runner,
		checker:       checker,
		logger:        logger,
		stop:          make(chan struct{}),
	}
}

// Start registers the cron job and launches the alert loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.started {
		return nil
	}
	s.started = true

	_, err := s.cron.AddFunc(s.newsSpec, func() {
		if err := s.runner.RunCycle(ctx); err != nil {
			if errors.Is(err, domain.ErrCycleInProgress) {
				s.logger.Warn("scheduled cycle skipped, previous still running")
				return
			}
			s.logger.Error("scheduled cycle failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()

	if s.checker != nil {
		go s.alertLoop(ctx)
	}

	s.logger.Info("scheduler started", "newsCron", s.newsSpec, "alertInterval", s.alertInterval)
	return nil
}

func (s *Scheduler) alertLoop(ctx context.Context) {
	ticker := time.NewTicker(s.alertInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checker.CheckAll(ctx)
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		}
	}
}

// Stop halts both timers; running jobs finish on their own contexts.
// The stop channel is closed exactly once and never reassigned, so the
// alert loop always observes it.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	})
}
