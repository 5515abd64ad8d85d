package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/pipeline"
	"NewsDesk/internal/ports"
	"NewsDesk/internal/provider"
)

const (
	apiBase     = "https://api.telegram.org/bot"
	pollTimeout = 30 * time.Second
)

// CycleRunner is the slice of the pipeline the bot drives.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
	Busy() bool
	Stats() pipeline.CycleStats
}

// AlertManager is the slice of the alert monitor the bot drives.
type AlertManager interface {
	AddRule(ctx context.Context, symbol string, direction domain.AlertDirection, threshold float64) (domain.AlertRule, error)
	Rules(ctx context.Context) ([]domain.AlertRule, error)
}

// QuoteSource serves /market lookups, typically the cached price feed.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}

// ProviderBoard exposes router state for the dashboard view.
type ProviderBoard interface {
	Snapshot() []provider.Status
}

// Deps are the application surfaces the bot commands operate on.
type Deps struct {
	Runner    CycleRunner
	Alerts    AlertManager
	Store     ports.DedupStore
	Feed      QuoteSource
	Providers ProviderBoard
	Watchlist []string
}

// Bot serves the command interface over Telegram long polling and doubles
// as the outbound notifier for alerts.
type Bot struct {
	token  string
	chatID string
	client *http.Client
	logger *slog.Logger
	deps   Deps

	offset int64
}

var _ ports.Notifier = (*Bot)(nil)

// NewBot registers credentials. Call Configure with command dependencies
// before Run; this two-step setup lets the alert monitor hold the bot as
// its notifier while the bot holds the monitor for /alert.
func NewBot(token, chatID string, logger *slog.Logger) *Bot {
	return &Bot{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: pollTimeout + 10*time.Second},
		logger: logger,
	}
}

// Configure binds the application surfaces the commands operate on.
func (b *Bot) Configure(deps Deps) { b.deps = deps }

// Notify sends a plain message to the configured chat.
func (b *Bot) Notify(ctx context.Context, text string) error {
	if b.token == "" || b.chatID == "" {
		return fmt.Errorf("telegram bot misconfigured")
	}
	return b.sendMessage(ctx, b.chatID, text)
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("telegram bot started")
	for {
		updates, err := b.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("telegram bot stopped")
				return
			}
			b.logger.Warn("poll updates", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= b.offset {
				b.offset = upd.UpdateID + 1
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

func (b *Bot) getUpdates(ctx context.Context) ([]update, error) {
	form := url.Values{}
	form.Set("offset", strconv.FormatInt(b.offset, 10))
	form.Set("timeout", strconv.Itoa(int(pollTimeout.Seconds())))

	raw, err := b.call(ctx, "getUpdates", form)
	if err != nil {
		return nil, err
	}

	var payload struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !payload.OK {
		return nil, fmt.Errorf("telegram getUpdates not ok")
	}
	return payload.Result, nil
}

func (b *Bot) handleUpdate(ctx context.Context, upd update) {
	if upd.Message == nil || upd.Message.Text == "" {
		return
	}
	chat := strconv.FormatInt(upd.Message.Chat.ID, 10)
	if b.chatID != "" && chat != b.chatID {
		// Commands are only honored from the configured chat.
		return
	}

	reply := b.dispatch(ctx, upd.Message.Text)
	if reply == "" {
		return
	}
	if err := b.sendMessage(ctx, chat, reply); err != nil {
		b.logger.Warn("send reply", "error", err)
	}
}

func (b *Bot) dispatch(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")

	switch cmd {
	case "/start", "/help":
		return helpText
	case "/news":
		return b.newsReply(ctx)
	case "/market":
		return b.marketReply(ctx)
	case "/dashboard":
		return b.dashboardReply(ctx)
	case "/alert":
		return b.alertReply(ctx, fields[1:])
	case "/run":
		return b.runReply(ctx)
	default:
		return "Unknown command. Try /help."
	}
}

const helpText = `Commands:
/news - latest published posts
/market - watchlist quotes
/alert SYMBOL above|below PRICE - add a price alert
/dashboard - pipeline and provider status
/run - trigger a news cycle now`

func (b *Bot) newsReply(ctx context.Context) string {
	posts, err := b.deps.Store.RecentCompleted(ctx, 5)
	if err != nil {
		return "Could not load recent posts: " + err.Error()
	}
	if len(posts) == 0 {
		return "Nothing published yet."
	}
	var sb strings.Builder
	for i, p := range posts {
		fmt.Fprintf(&sb, "%d. %s\n%s\n", i+1, p.Title, p.SourceURL)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) marketReply(ctx context.Context) string {
	if b.deps.Feed == nil {
		return "Market data is not configured."
	}
	if len(b.deps.Watchlist) == 0 {
		return "Watchlist is empty."
	}
	var sb strings.Builder
	for _, symbol := range b.deps.Watchlist {
		q, err := b.deps.Feed.Quote(ctx, symbol)
		if err != nil {
			fmt.Fprintf(&sb, "%s: unavailable\n", symbol)
			continue
		}
		fmt.Fprintf(&sb, "%s: %.2f\n", q.Symbol, q.Value)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) dashboardReply(ctx context.Context) string {
	var sb strings.Builder

	stats := b.deps.Runner.Stats()
	if stats.StartedAt.IsZero() {
		sb.WriteString("Last cycle: none yet\n")
	} else {
		fmt.Fprintf(&sb, "Last cycle: %s\n  admitted %d, completed %d, failed %d, skipped %d\n",
			stats.StartedAt.Format(time.RFC822),
			stats.Admitted, stats.Completed, stats.Failed, stats.Skipped)
	}

	sb.WriteString("Providers:\n")
	for _, st := range b.deps.Providers.Snapshot() {
		state := "ready"
		if st.CoolingDown {
			state = "cooling down"
		}
		fmt.Fprintf(&sb, "  %s (%s): %d/%d in window, %d ok / %d failed, %s\n",
			st.ID, st.Capability, st.WindowUsage, st.Limit, st.Successes, st.Failures, state)
	}

	if b.deps.Alerts != nil {
		if rules, err := b.deps.Alerts.Rules(ctx); err == nil {
			fmt.Fprintf(&sb, "Alert rules: %d", len(rules))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) alertReply(ctx context.Context, args []string) string {
	if b.deps.Alerts == nil {
		return "Alerts are not configured."
	}
	if len(args) != 3 {
		return "Usage: /alert SYMBOL above|below PRICE"
	}
	symbol := strings.ToUpper(args[0])

	var direction domain.AlertDirection
	switch strings.ToLower(args[1]) {
	case "above":
		direction = domain.DirectionAbove
	case "below":
		direction = domain.DirectionBelow
	default:
		return "Direction must be above or below."
	}

	threshold, err := strconv.ParseFloat(args[2], 64)
	if err != nil || threshold <= 0 {
		return "Price must be a positive number."
	}

	rule, err := b.deps.Alerts.AddRule(ctx, symbol, direction, threshold)
	if err != nil {
		return "Could not add alert: " + err.Error()
	}
	return fmt.Sprintf("Alert added: %s %s %.2f", rule.Symbol, rule.Direction, rule.Threshold)
}

func (b *Bot) runReply(ctx context.Context) string {
	if b.deps.Runner.Busy() {
		return "A cycle is already running."
	}
	go func() {
		if err := b.deps.Runner.RunCycle(context.WithoutCancel(ctx)); err != nil {
			b.logger.Warn("manual cycle", "error", err)
		}
	}()
	return "Cycle started."
}

func (b *Bot) sendMessage(ctx context.Context, chatID, text string) error {
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)

	_, err := b.call(ctx, "sendMessage", form)
	return err
}

func (b *Bot) call(ctx context.Context, method string, form url.Values) ([]byte, error) {
	endpoint := apiBase + b.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram %s: %s", method, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return raw, nil
}
