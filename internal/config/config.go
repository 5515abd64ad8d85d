package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "UTC"
	configPathEnv    = "NEWSDESK_CONFIG"
	databaseDSNEnv   = "DATABASE_DSN"
	redisAddrEnv     = "REDIS_ADDR"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	telegramChatEnv  = "TELEGRAM_CHAT_ID"
	finnhubKeyEnv    = "FINNHUB_API_KEY"
)

// Duration wraps time.Duration so YAML values like "5m" parse directly.
type Duration time.Duration

// UnmarshalYAML parses Go duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Pipeline  PipelineConfig   `yaml:"pipeline"`
	Database  DatabaseConfig   `yaml:"database"`
	Redis     RedisConfig      `yaml:"redis"`
	Telegram  TelegramConfig   `yaml:"telegram"`
	Facebook  FacebookConfig   `yaml:"facebook"`
	Finnhub   FinnhubConfig    `yaml:"finnhub"`
	Alerts    AlertConfig      `yaml:"alerts"`
	Providers []ProviderConfig `yaml:"providers"`
	Sources   []SourceConfig   `yaml:"sources"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SchedulerConfig defines the two independent timers.
type SchedulerConfig struct {
	NewsCron      string         `yaml:"newsCron"`
	AlertInterval Duration       `yaml:"alertInterval"`
	Timezone      string         `yaml:"timezone"`
	location      *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// PipelineConfig tunes the coordinator's retry and concurrency policy.
// The image flags are pointers so a file that omits them keeps the
// defaults instead of zeroing them.
type PipelineConfig struct {
	MaxAttempts    int      `yaml:"maxAttempts"`
	RetryBackoff   Duration `yaml:"retryBackoff"`
	Concurrency    int      `yaml:"concurrency"`
	GenerateImages *bool    `yaml:"generateImages"`
	RequireImage   *bool    `yaml:"requireImage"`
	Retention      Duration `yaml:"retention"`
	ClaimTTL       Duration `yaml:"claimTTL"`
}

// ImagesEnabled reports whether posts get an illustration; on by default.
func (p PipelineConfig) ImagesEnabled() bool {
	return p.GenerateImages == nil || *p.GenerateImages
}

// ImageRequired reports whether a failed illustration fails the post;
// off by default.
func (p PipelineConfig) ImageRequired() bool {
	return p.RequireImage != nil && *p.RequireImage
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig wires the optional cache; empty Addr disables it.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// TelegramConfig wires the command bot.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// FacebookConfig drives the browser-automated publish gateway.
type FacebookConfig struct {
	PageURL     string   `yaml:"pageUrl"`
	UserDataDir string   `yaml:"userDataDir"`
	Headless    bool     `yaml:"headless"`
	Retries     int      `yaml:"retries"`
	StepTimeout Duration `yaml:"stepTimeout"`
}

// FinnhubConfig holds the market data credentials.
type FinnhubConfig struct {
	APIKey string `yaml:"apiKey"`
}

// AlertConfig tunes market-alert evaluation.
type AlertConfig struct {
	DefaultCooldown Duration `yaml:"defaultCooldown"`
	Watchlist       []string `yaml:"watchlist"`
}

// RateLimitConfig is a count-per-window cap enforced as a sliding window.
type RateLimitConfig struct {
	Count  int      `yaml:"count"`
	Window Duration `yaml:"window"`
}

// ProviderConfig is a closed record describing one AI provider profile.
// Credentials are referenced by env var name, never stored in the file.
type ProviderConfig struct {
	ID         string          `yaml:"id"`
	Kind       string          `yaml:"kind"`       // openai | anthropic | cohere
	Capability string          `yaml:"capability"` // text | image
	Model      string          `yaml:"model"`
	Priority   int             `yaml:"priority"`
	RateLimit  RateLimitConfig `yaml:"rateLimit"`
	APIKeyEnv  string          `yaml:"apiKeyEnv"`
}

// APIKey resolves the provider credential from the environment.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// SelectorConfig describes how the web scanner extracts fields from a page.
type SelectorConfig struct {
	Entry      string `yaml:"entry"`
	Title      string `yaml:"title"`
	Link       string `yaml:"link"`
	Body       string `yaml:"body"`
	Date       string `yaml:"date"`
	DateLayout string `yaml:"dateLayout"`
}

// SourceConfig describes a single news source with its adapter kind.
type SourceConfig struct {
	Name      string         `yaml:"name"`
	Kind      string         `yaml:"kind"` // rss | web | finnhub
	URL       string         `yaml:"url"`
	Category  string         `yaml:"category"`
	MaxItems  int            `yaml:"maxItems"`
	Selectors SelectorConfig `yaml:"selectors"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatEnv); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv(finnhubKeyEnv); v != "" {
		c.Finnhub.APIKey = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Scheduler.NewsCron != "" {
		base.Scheduler.NewsCron = override.Scheduler.NewsCron
	}
	if override.Scheduler.AlertInterval != 0 {
		base.Scheduler.AlertInterval = override.Scheduler.AlertInterval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Pipeline.MaxAttempts != 0 {
		base.Pipeline.MaxAttempts = override.Pipeline.MaxAttempts
	}
	if override.Pipeline.RetryBackoff != 0 {
		base.Pipeline.RetryBackoff = override.Pipeline.RetryBackoff
	}
	if override.Pipeline.Concurrency != 0 {
		base.Pipeline.Concurrency = override.Pipeline.Concurrency
	}
	if override.Pipeline.Retention != 0 {
		base.Pipeline.Retention = override.Pipeline.Retention
	}
	if override.Pipeline.ClaimTTL != 0 {
		base.Pipeline.ClaimTTL = override.Pipeline.ClaimTTL
	}
	if override.Pipeline.GenerateImages != nil {
		base.Pipeline.GenerateImages = override.Pipeline.GenerateImages
	}
	if override.Pipeline.RequireImage != nil {
		base.Pipeline.RequireImage = override.Pipeline.RequireImage
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}
	if override.Redis.Addr != "" {
		base.Redis = override.Redis
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.ChatID != "" {
		base.Telegram.ChatID = override.Telegram.ChatID
	}

	if override.Facebook.PageURL != "" {
		base.Facebook = override.Facebook
	}
	if override.Finnhub.APIKey != "" {
		base.Finnhub = override.Finnhub
	}

	if override.Alerts.DefaultCooldown != 0 {
		base.Alerts.DefaultCooldown = override.Alerts.DefaultCooldown
	}
	if len(override.Alerts.Watchlist) > 0 {
		base.Alerts.Watchlist = override.Alerts.Watchlist
	}

	if len(override.Providers) > 0 {
		base.Providers = override.Providers
	}
	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Scheduler: SchedulerConfig{
			NewsCron:      "0 */2 * * *",
			AlertInterval: Duration(5 * time.Minute),
			Timezone:      defaultTimezone,
			location:      tz,
		},
		Pipeline: PipelineConfig{
			MaxAttempts:  3,
			RetryBackoff: Duration(2 * time.Second),
			Concurrency:  2,
			Retention:    Duration(14 * 24 * time.Hour),
			ClaimTTL:     Duration(time.Hour),
		},
		Facebook: FacebookConfig{
			Headless:    true,
			Retries:     2,
			StepTimeout: Duration(45 * time.Second),
		},
		Alerts: AlertConfig{
			DefaultCooldown: Duration(time.Hour),
			Watchlist:       []string{"AAPL", "MSFT", "BINANCE:BTCUSDT"},
		},
		Providers: []ProviderConfig{
			{
				ID:         "openai-text",
				Kind:       "openai",
				Capability: "text",
				Model:      "gpt-4o-mini",
				Priority:   1,
				RateLimit:  RateLimitConfig{Count: 30, Window: Duration(time.Minute)},
				APIKeyEnv:  "OPENAI_API_KEY",
			},
			{
				ID:         "anthropic-text",
				Kind:       "anthropic",
				Capability: "text",
				Model:      "claude-haiku-4-5",
				Priority:   2,
				RateLimit:  RateLimitConfig{Count: 30, Window: Duration(time.Minute)},
				APIKeyEnv:  "ANTHROPIC_API_KEY",
			},
			{
				ID:         "cohere-text",
				Kind:       "cohere",
				Capability: "text",
				Model:      "command-r",
				Priority:   3,
				RateLimit:  RateLimitConfig{Count: 20, Window: Duration(time.Minute)},
				APIKeyEnv:  "COHERE_API_KEY",
			},
			{
				ID:         "openai-image",
				Kind:       "openai",
				Capability: "image",
				Model:      "dall-e-3",
				Priority:   1,
				RateLimit:  RateLimitConfig{Count: 5, Window: Duration(time.Minute)},
				APIKeyEnv:  "OPENAI_API_KEY",
			},
		},
		Sources: []SourceConfig{
			{
				Name:     "reuters-business",
				Kind:     "rss",
				URL:      "https://feeds.reuters.com/reuters/businessNews",
				MaxItems: 20,
			},
			{
				Name:     "finnhub-general",
				Kind:     "finnhub",
				Category: "general",
				MaxItems: 20,
			},
		},
	}
}
