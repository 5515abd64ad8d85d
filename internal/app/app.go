package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"NewsDesk/internal/aggregator"
	"NewsDesk/internal/alerts"
	"NewsDesk/internal/config"
	"NewsDesk/internal/infrastructure/cache"
	"NewsDesk/internal/infrastructure/facebook"
	"NewsDesk/internal/infrastructure/llm"
	"NewsDesk/internal/infrastructure/marketdata"
	"NewsDesk/internal/infrastructure/sources"
	"NewsDesk/internal/infrastructure/storage"
	"NewsDesk/internal/infrastructure/telegram"
	"NewsDesk/internal/logging"
	"NewsDesk/internal/pipeline"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/provider"
	"NewsDesk/internal/schedule"
)

// Application wires configuration into the pipeline, alert monitor,
// scheduler and command bot, and owns their lifecycles.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	router      *provider.Router
	coordinator *pipeline.Coordinator
	scheduler   *schedule.Scheduler
	bot         *telegram.Bot

	closers []func()
}

// New builds a runnable application instance.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	app := &Application{cfg: cfg, logger: baseLogger}

	store, alertRepo, err := app.buildStores(ctx)
	if err != nil {
		return nil, err
	}

	postCache, err := cache.New(ctx, cfg.Redis.Addr)
	if err != nil {
		baseLogger.Warn("redis unavailable, caching disabled", "error", err)
		postCache = nil
	} else if postCache != nil {
		app.closers = append(app.closers, func() { _ = postCache.Close() })
	}

	var market *marketdata.Client
	if cfg.Finnhub.APIKey != "" {
		market = marketdata.NewClient(cfg.Finnhub.APIKey)
	} else {
		baseLogger.Warn("finnhub key missing, market data disabled")
	}

	feeds := sources.Build(cfg.Sources, market, baseLogger.With("component", "sources"))
	agg := aggregator.New(feeds, store, baseLogger.With("component", "aggregator"))

	app.router = provider.NewRouter(baseLogger.With("component", "router"))
	app.router.Replace(app.buildProfiles(cfg.Providers))

	publisher, err := app.buildPublisher()
	if err != nil {
		return nil, err
	}

	app.coordinator = pipeline.New(pipeline.Deps{
		Source:    agg,
		Generator: app.router,
		Publisher: publisher,
		Store:     store,
		Logger:    baseLogger.With("component", "pipeline"),
	}, pipeline.Config{
		MaxAttempts:    cfg.Pipeline.MaxAttempts,
		RetryBackoff:   cfg.Pipeline.RetryBackoff.Std(),
		Concurrency:    cfg.Pipeline.Concurrency,
		GenerateImages: cfg.Pipeline.ImagesEnabled(),
		RequireImage:   cfg.Pipeline.ImageRequired(),
	})

	app.bot = telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
		baseLogger.With("component", "telegram"))

	var monitor *alerts.Monitor
	if market != nil {
		monitor = alerts.New(alertRepo, market, app.bot,
			cfg.Alerts.DefaultCooldown.Std(), baseLogger.With("component", "alerts"))
	}

	botDeps := telegram.Deps{
		Runner:    app.coordinator,
		Store:     cache.NewArchive(store, postCache),
		Providers: app.router,
		Watchlist: cfg.Alerts.Watchlist,
	}
	if monitor != nil {
		botDeps.Alerts = monitor
	}
	if market != nil {
		botDeps.Feed = cache.NewCachedFeed(market, postCache)
	}
	app.bot.Configure(botDeps)

	var checker schedule.AlertChecker
	if monitor != nil {
		checker = monitor
	}
	app.scheduler = schedule.New(
		cfg.Scheduler.NewsCron,
		cfg.Scheduler.AlertInterval.Std(),
		cfg.Scheduler.Location(),
		app.coordinator,
		checker,
		baseLogger.With("component", "scheduler"),
	)

	return app, nil
}

func (a *Application) buildStores(ctx context.Context) (ports.DedupStore, ports.AlertRepository, error) {
	retention := a.cfg.Pipeline.Retention.Std()
	claimTTL := a.cfg.Pipeline.ClaimTTL.Std()

	if a.cfg.Database.DSN == "" {
		a.logger.Warn("database DSN missing, using in-memory store; history is lost on restart")
		return storage.NewMemoryStore(retention, claimTTL), storage.NewMemoryAlerts(), nil
	}

	pg, err := storage.Open(ctx, a.cfg.Database.DSN, retention, claimTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, func() { _ = pg.Close() })
	return pg, pg, nil
}

func (a *Application) buildProfiles(cfgs []config.ProviderConfig) []*provider.Profile {
	var profiles []*provider.Profile
	for _, pc := range cfgs {
		key := pc.APIKey()
		if key == "" {
			a.logger.Warn("provider credential missing, skipping", "provider", pc.ID, "env", pc.APIKeyEnv)
			continue
		}

		profile := &provider.Profile{
			ID:       pc.ID,
			Priority: pc.Priority,
			Limit:    pc.RateLimit.Count,
			Window:   pc.RateLimit.Window.Std(),
		}
		switch pc.Capability {
		case "image":
			profile.Capability = provider.CapabilityImage
		default:
			profile.Capability = provider.CapabilityText
		}

		switch pc.Kind {
		case "openai":
			client := llm.NewOpenAIClient(key, pc.Model)
			profile.Text = client
			profile.Image = client
		case "anthropic":
			profile.Text = llm.NewAnthropicClient(key, pc.Model)
		case "cohere":
			profile.Text = llm.NewCohereClient(key, pc.Model)
		default:
			a.logger.Warn("unknown provider kind, skipping", "provider", pc.ID, "kind", pc.Kind)
			continue
		}

		if profile.Capability == provider.CapabilityImage && profile.Image == nil {
			a.logger.Warn("provider kind cannot render images, skipping",
				"provider", pc.ID, "kind", pc.Kind)
			continue
		}

		profiles = append(profiles, profile)
		a.logger.Info("provider configured", "provider", pc.ID, "capability", profile.Capability)
	}
	return profiles
}

// reloadProviders re-reads configuration and swaps the active provider
// set without a restart. Only the provider list is refreshed; everything
// else keeps the configuration it started with.
func (a *Application) reloadProviders() {
	cfg := config.Load()
	a.router.Replace(a.buildProfiles(cfg.Providers))
	a.logger.Info("provider profiles reloaded", "count", len(cfg.Providers))
}

func (a *Application) buildPublisher() (ports.Publisher, error) {
	if a.cfg.Facebook.PageURL == "" {
		a.logger.Warn("facebook page not configured, posts will only be logged")
		return &logPublisher{logger: a.logger.With("component", "publisher")}, nil
	}

	pub, err := facebook.New(a.cfg.Facebook)
	if err != nil {
		return nil, fmt.Errorf("start publisher: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

// Run starts the bot and scheduler and blocks until the context is
// cancelled, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.Telegram.BotToken != "" {
		go a.bot.Run(ctx)
	} else {
		a.logger.Warn("telegram token missing, command interface disabled")
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-hup:
				a.reloadProviders()
			case <-ctx.Done():
				return
			}
		}
	}()

	a.logger.Info("newsdesk running")

	<-ctx.Done()
	a.logger.Info("shutting down")

	a.scheduler.Stop()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	return nil
}
