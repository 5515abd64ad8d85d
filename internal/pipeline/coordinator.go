package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

// Generator is the provider-router surface the coordinator depends on.
type Generator interface {
	GenerateText(ctx context.Context, req domain.TextRequest) (string, string, error)
	GenerateImage(ctx context.Context, prompt string) (string, string, error)
}

// BatchSource produces one poll cycle of candidate items.
type BatchSource interface {
	FetchAll(ctx context.Context) ([]domain.NewsItem, error)
}

// Config tunes retry and concurrency policy.
type Config struct {
	MaxAttempts    int
	RetryBackoff   time.Duration
	Concurrency    int
	GenerateImages bool
	RequireImage   bool
}

// Deps wires the coordinator's collaborators.
type Deps struct {
	Source    BatchSource
	Generator Generator
	Publisher ports.Publisher
	Store     ports.DedupStore
	Logger    *slog.Logger
}

// CycleStats summarizes the most recent cycle for the dashboard view.
type CycleStats struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Admitted   int
	Completed  int
	Failed     int
	Skipped    int
}

// Coordinator drives each admitted item through
// summarize -> illustrate -> publish with bounded retries. It owns every
// PipelineTask; the dedup store's claim step guarantees at most one active
// attempt per key.
type Coordinator struct {
	source    BatchSource
	generator Generator
	publisher ports.Publisher
	store     ports.DedupStore
	logger    *slog.Logger
	cfg       Config

	busy  atomic.Bool
	sleep func(ctx context.Context, d time.Duration) error

	statsMu sync.Mutex
	stats   CycleStats
}

// New constructs the coordinator, applying safe defaults for zero config
// values.
func New(deps Deps, cfg Config) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Coordinator{
		source:    deps.Source,
		generator: deps.Generator,
		publisher: deps.Publisher,
		store:     deps.Store,
		logger:    deps.Logger,
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

// RunCycle executes one full cycle: fetch, admit, process. Manual and
// scheduled triggers both land here; a trigger while a cycle is running
// returns ErrCycleInProgress instead of queueing.
func (c *Coordinator) RunCycle(ctx context.Context) error {
	if !c.busy.CompareAndSwap(false, true) {
		return domain.ErrCycleInProgress
	}
	defer c.busy.Store(false)

	started := time.Now()
	items, err := c.source.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch cycle: %w", err)
	}
	c.logger.Info("cycle started", "candidates", len(items))

	var admitted, completed, failed, skipped atomic.Int64

	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		claimed, err := c.store.Claim(ctx, item)
		if err != nil {
			c.logger.Warn("claim failed, leaving item for next cycle",
				"source", item.SourceID, "id", item.ExternalID, "error", err)
			continue
		}
		if !claimed {
			// Another cycle or a finished task already owns this key.
			skipped.Add(1)
			c.logger.Debug("item skipped on dedup conflict",
				"source", item.SourceID, "id", item.ExternalID)
			continue
		}
		admitted.Add(1)

		// Acquiring the slot before spawning keeps task start order equal
		// to the merged ascending-time order of the batch.
		sem <- struct{}{}
		wg.Add(1)
		go func(item domain.NewsItem) {
			defer wg.Done()
			defer func() { <-sem }()

			task := c.runTask(ctx, item)
			switch task.State {
			case domain.StateCompleted:
				completed.Add(1)
			case domain.StateFailed:
				failed.Add(1)
			}
		}(item)
	}

	wg.Wait()

	c.statsMu.Lock()
	c.stats = CycleStats{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Admitted:   int(admitted.Load()),
		Completed:  int(completed.Load()),
		Failed:     int(failed.Load()),
		Skipped:    int(skipped.Load()),
	}
	c.statsMu.Unlock()

	c.logger.Info("cycle finished",
		"admitted", admitted.Load(),
		"completed", completed.Load(),
		"failed", failed.Load(),
		"skipped", skipped.Load(),
		"elapsed", time.Since(started))
	return nil
}

// Stats returns the snapshot of the last finished cycle.
func (c *Coordinator) Stats() CycleStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Busy reports whether a cycle is currently running.
func (c *Coordinator) Busy() bool { return c.busy.Load() }

func (c *Coordinator) runTask(ctx context.Context, item domain.NewsItem) *domain.PipelineTask {
	task := &domain.PipelineTask{
		ID:        uuid.NewString(),
		Item:      item,
		State:     domain.StateAdmitted,
		UpdatedAt: time.Now(),
	}
	log := c.logger.With("task", task.ID, "source", item.SourceID, "id", item.ExternalID)

	c.transition(task, domain.StateSummarizing)
	var summary, providerID string
	err := c.retryStage(ctx, task, "summarize", log, func(ctx context.Context) error {
		out, provider, err := c.generator.GenerateText(ctx, summaryRequest(item))
		if err != nil {
			return err
		}
		summary, providerID = cleanGenerated(out), provider
		return nil
	})
	if err != nil {
		return c.abandon(ctx, task, log, err)
	}
	task.Summary = summary
	task.ProviderUsed = providerID

	if c.cfg.GenerateImages {
		c.transition(task, domain.StateIllustrating)
		err := c.retryStage(ctx, task, "illustrate", log, func(ctx context.Context) error {
			ref, _, err := c.generator.GenerateImage(ctx, imagePrompt(item, summary))
			if err != nil {
				return err
			}
			task.ImageRef = ref
			return nil
		})
		if err != nil {
			if c.cfg.RequireImage || isShutdown(ctx, err) {
				return c.abandon(ctx, task, log, err)
			}
			// The summary is independently valuable; ship it without art.
			log.Warn("illustration failed, publishing without image", "error", err)
			task.ImageRef = ""
		}
	}

	c.transition(task, domain.StatePublishing)
	var ref domain.PublishedRef
	err = c.retryStage(ctx, task, "publish", log, func(ctx context.Context) error {
		r, err := c.publisher.Publish(ctx, composePost(item, task.Summary, task.ImageRef))
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		return c.abandon(ctx, task, log, err)
	}

	if err := c.store.Finalize(ctx, item.Key(), task.Summary, ref); err != nil {
		// The post exists; losing the finalize would risk a double publish
		// next cycle, so this is the one store error worth surfacing loudly.
		log.Error("finalize after publish failed", "post", ref.URL, "error", err)
	}

	task.Published = &ref
	c.transition(task, domain.StateCompleted)
	log.Info("task completed", "provider", task.ProviderUsed, "post", ref.URL)
	return task
}

// retryStage runs fn with bounded attempts and exponential backoff. Fatal
// publish errors and shutdown short-circuit the loop.
func (c *Coordinator) retryStage(ctx context.Context, task *domain.PipelineTask, stage string, log *slog.Logger, fn func(context.Context) error) error {
	backoff := c.cfg.RetryBackoff
	var last error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		task.Attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err

		if domain.IsFatalPublish(err) {
			log.Error("fatal failure, not retrying", "stage", stage, "error", err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Warn("stage attempt failed", "stage", stage, "attempt", attempt, "error", err)
		if attempt < c.cfg.MaxAttempts {
			if err := c.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("%s exhausted %d attempts: %w", stage, c.cfg.MaxAttempts, last)
}

// abandon resolves a task that cannot complete. On shutdown the claim is
// released so a later cycle may re-attempt; on real failure the entry is
// downgraded to failed (also re-attemptable) with the reason persisted.
func (c *Coordinator) abandon(ctx context.Context, task *domain.PipelineTask, log *slog.Logger, cause error) *domain.PipelineTask {
	task.LastError = cause.Error()

	if isShutdown(ctx, cause) {
		detached, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.store.Release(detached, task.Item.Key()); err != nil {
			log.Error("release claim on shutdown failed", "error", err)
		}
		log.Info("task abandoned on shutdown, claim released", "state", string(task.State))
		return task
	}

	if err := c.store.MarkFailed(ctx, task.Item.Key(), cause.Error()); err != nil {
		log.Error("mark failed errored", "error", err)
	}
	c.transition(task, domain.StateFailed)
	log.Error("task failed", "error", cause)
	return task
}

func (c *Coordinator) transition(task *domain.PipelineTask, next domain.TaskState) {
	task.State = next
	task.UpdatedAt = time.Now()
}

func isShutdown(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
