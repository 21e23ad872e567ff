// Package notification provides implementations for various notification services
package notification

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"slices"

	"github.com/samber/lo"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/ghiemer/crypto-analyzer-gpt/pkg/alert"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/feargreed"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/logger"
)

const (
	pollingTimeout = 10 * time.Second
	requestTimeout = 10 * time.Second
)

var (
	watchRegexp   = regexp.MustCompile(`/watch\s+(?P<symbol>\w+)\s+(?P<condition>above|below|breakout)\s+(?P<price>\d+(?:\.\d+)?)(?:\s+(?P<description>.+))?`)
	unwatchRegexp = regexp.MustCompile(`/unwatch\s+(?P<id>[\w-]+)`)
)

// conditionAliases maps the short command notation to alert conditions
var conditionAliases = map[string]core.AlertCondition{
	"above":    core.PriceAbove,
	"below":    core.PriceBelow,
	"breakout": core.Breakout,
}

// Telegram implements the core.NotifierWithStart interface
type Telegram struct {
	settings    *core.Settings
	registry    *alert.Registry
	sentiment   *feargreed.Service
	defaultMenu *tb.ReplyMarkup
	client      *tb.Bot
	log         logger.Logger
}

// Option is a function that configures a telegram instance
type Option func(telegram *Telegram)

// WithFearGreed attaches a sentiment service backing the /feargreed command
func WithFearGreed(service *feargreed.Service) Option {
	return func(telegram *Telegram) {
		telegram.sentiment = service
	}
}

// NewTelegram creates and initializes a new Telegram service
func NewTelegram(registry *alert.Registry, settings *core.Settings, log logger.Logger, options ...Option) (
	core.NotifierWithStart,
	error,
) {
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: pollingTimeout}
	userMiddleware := newAuthMiddleware(poller, settings, log)

	client, err := initializeBotClient(settings, userMiddleware)
	if err != nil {
		return nil, err
	}

	setupKeyboard(menu)
	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot := &Telegram{
		registry:    registry,
		client:      client,
		settings:    settings,
		defaultMenu: menu,
		log:         log,
	}

	for _, option := range options {
		option(bot)
	}

	registerHandlers(client, bot)

	return bot, nil
}

// initializeBotClient creates and configures the Telegram bot client
func initializeBotClient(settings *core.Settings, middleware *tb.MiddlewarePoller) (*tb.Bot, error) {
	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Telegram.Token,
		Poller:    middleware,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return client, nil
}

// newAuthMiddleware creates a middleware to validate authorized users
func newAuthMiddleware(poller *tb.LongPoller, settings *core.Settings, log logger.Logger) *tb.MiddlewarePoller {
	return tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			log.Error("message or sender is nil ", u)
			return false
		}

		if slices.Contains(settings.Telegram.Users, int(u.Message.Sender.ID)) {
			return true
		}

		log.Error("unauthorized user ", u.Message.Sender.ID)
		return false
	})
}

// setupKeyboard configures the reply keyboard layout
func setupKeyboard(menu *tb.ReplyMarkup) {
	var (
		alertsBtn    = menu.Text("/alerts")
		statsBtn     = menu.Text("/stats")
		feargreedBtn = menu.Text("/feargreed")
		helpBtn      = menu.Text("/help")
	)

	menu.Reply(
		menu.Row(alertsBtn, statsBtn),
		menu.Row(feargreedBtn, helpBtn),
	)
}

// setupCommands configures available bot commands
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/alerts", Description: "List active price alerts"},
		{Text: "/watch", Description: "Create a price alert"},
		{Text: "/unwatch", Description: "Delete a price alert"},
		{Text: "/stats", Description: "Monitoring statistics"},
		{Text: "/feargreed", Description: "Current Fear & Greed index"},
	})
}

// registerHandlers registers all command handlers
func registerHandlers(client *tb.Bot, bot *Telegram) {
	client.Handle("/help", bot.HelpHandle)
	client.Handle("/alerts", bot.AlertsHandle)
	client.Handle("/watch", bot.WatchHandle)
	client.Handle("/unwatch", bot.UnwatchHandle)
	client.Handle("/stats", bot.StatsHandle)
	client.Handle("/feargreed", bot.FearGreedHandle)
}

// Start begins the Telegram bot and notifies all authorized users
func (t *Telegram) Start() {
	go t.client.Start()
	t.sendMessageWithOptions("Bot initialized.", t.defaultMenu)
}

// Stop shuts down the bot poller
func (t *Telegram) Stop() {
	t.client.Stop()
}

// Notification methods
// -------------------

// Notify sends a message to all authorized users.
// Returns true when at least one user received it.
func (t *Telegram) Notify(text string) bool {
	delivered := false
	for _, user := range t.settings.Telegram.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text)
		if err != nil {
			t.log.WithError(err).Error("failed to send notification")
			continue
		}
		delivered = true
	}
	return delivered
}

// sendMessageWithOptions sends a message to all authorized users with additional options
func (t *Telegram) sendMessageWithOptions(text string, options ...any) {
	for _, user := range t.settings.Telegram.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text, options...)
		if err != nil {
			t.log.WithError(err).Error("failed to send notification with options")
		}
	}
}

// sendMessage sends a message to a specific user
func (t *Telegram) sendMessage(to *tb.User, text string, options ...any) {
	_, err := t.client.Send(to, text, options...)
	if err != nil {
		t.log.WithError(err).Error("failed to send message")
	}
}

// Command handlers
// ---------------

// HelpHandle displays available commands
func (t *Telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		t.log.WithError(err).Error("failed to get commands")
		t.sendMessage(m.Sender, "Failed to load commands.")
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}
	lines = append(lines,
		"",
		"Examples:",
		"`/watch BTCUSDT above 70000 moon watch`",
		"`/watch ETHUSDT breakout 4000`",
		"`/unwatch <alert-id>`",
	)

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// AlertsHandle lists all active alerts
func (t *Telegram) AlertsHandle(m *tb.Message) {
	alerts := t.registry.Active()
	if len(alerts) == 0 {
		t.sendMessage(m.Sender, "No active alerts.")
		return
	}

	lines := lo.Map(alerts, func(a core.Alert, _ int) string {
		line := fmt.Sprintf("`%s`\n%s %s $%s", a.ID, a.Symbol, conditionLabel(a.Condition), formatTarget(a.TargetPrice))
		if a.Description != "" {
			line += " (" + a.Description + ")"
		}
		return line
	})

	t.sendMessage(m.Sender, fmt.Sprintf("*Active alerts (%d)*\n\n%s", len(alerts), strings.Join(lines, "\n\n")))
}

// WatchHandle creates a new alert from a /watch command
func (t *Telegram) WatchHandle(m *tb.Message) {
	match := watchRegexp.FindStringSubmatch(m.Text)
	if len(match) == 0 {
		t.sendMessage(m.Sender, "Invalid command.\nExamples of usage:\n`/watch BTCUSDT above 70000`\n\n`/watch ETHUSDT breakout 4000 round number`")
		return
	}

	symbol := match[watchRegexp.SubexpIndex("symbol")]
	condition := conditionAliases[match[watchRegexp.SubexpIndex("condition")]]
	description := match[watchRegexp.SubexpIndex("description")]

	price, err := strconv.ParseFloat(match[watchRegexp.SubexpIndex("price")], 64)
	if err != nil {
		t.sendMessage(m.Sender, "Invalid price value.")
		return
	}

	id, err := t.registry.Create(symbol, condition, price, description)
	if err != nil {
		t.sendMessage(m.Sender, fmt.Sprintf("Failed to create alert: %s", err))
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("📝 Alert created: %s %s $%s\nID: `%s`",
		strings.ToUpper(symbol), conditionLabel(condition), formatTarget(price), id))
}

// UnwatchHandle deletes an alert from an /unwatch command
func (t *Telegram) UnwatchHandle(m *tb.Message) {
	match := unwatchRegexp.FindStringSubmatch(m.Text)
	if len(match) == 0 {
		t.sendMessage(m.Sender, "Invalid command.\nUsage: `/unwatch <alert-id>`")
		return
	}

	t.sendMessage(m.Sender, unwatchReply(t.registry, match[unwatchRegexp.SubexpIndex("id")]))
}

// unwatchReply removes the alert and builds the user-facing reply.
// Delete itself is idempotent, so unknown ids are looked up first and
// reported rather than silently confirmed.
func unwatchReply(registry *alert.Registry, id string) string {
	if _, ok := registry.Get(id); !ok {
		return fmt.Sprintf("No alert with id `%s`.", id)
	}
	registry.Delete(id)
	return fmt.Sprintf("🗑 Alert `%s` removed.", id)
}

// StatsHandle reports monitoring statistics
func (t *Telegram) StatsHandle(m *tb.Message) {
	stats := t.registry.Stats()

	var sb strings.Builder
	sb.WriteString("*Monitoring stats*\n\n")
	sb.WriteString(fmt.Sprintf("Active alerts: %d\n", stats.TotalActive))
	sb.WriteString(fmt.Sprintf("Active streams: %d\n", stats.ActiveStreams))

	if len(stats.StreamingSymbols) > 0 {
		sb.WriteString(fmt.Sprintf("Streaming: %s\n", strings.Join(stats.StreamingSymbols, ", ")))
	}

	for symbol, count := range stats.BySymbol {
		sb.WriteString(fmt.Sprintf("  %s: %d\n", symbol, count))
	}

	t.sendMessage(m.Sender, sb.String())
}

// FearGreedHandle reports the current Fear & Greed index
func (t *Telegram) FearGreedHandle(m *tb.Message) {
	if t.sentiment == nil {
		t.sendMessage(m.Sender, "Fear & Greed index not configured.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	idx, err := t.sentiment.Current(ctx)
	if err != nil {
		t.log.WithError(err).Error("failed to fetch fear greed index")
		t.sendMessage(m.Sender, "Failed to fetch the Fear & Greed index.")
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("%s *Fear & Greed*: %d (%s)",
		sentimentEmoji(idx.Value), idx.Value, idx.Classification))
}

func conditionLabel(condition core.AlertCondition) string {
	switch condition {
	case core.PriceAbove:
		return "above"
	case core.PriceBelow:
		return "below"
	case core.Breakout:
		return "breakout"
	}
	return string(condition)
}

func formatTarget(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

func sentimentEmoji(value int) string {
	switch {
	case value < 25:
		return "😱"
	case value < 50:
		return "😨"
	case value < 75:
		return "😐"
	default:
		return "🤑"
	}
}
