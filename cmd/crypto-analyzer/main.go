package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	str2duration "github.com/xhit/go-str2duration/v2"

	cryptoanalyzer "github.com/ghiemer/crypto-analyzer-gpt"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/core"
	"github.com/ghiemer/crypto-analyzer-gpt/pkg/storage"
)

// Command line flags
var (
	listen         string
	apiKey         string
	database       string
	redisURL       string
	telegramToken  string
	telegramUsers  []string
	checkInterval  string
	pollInterval   string
	requestTimeout string
	cooldown       string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "crypto-analyzer",
		Short:   "Crypto market data and price alert service",
		Version: "1.0.0",
	}

	rootCmd.AddCommand(buildServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and alert monitor",
		RunE:  runServe,
	}

	serveCmd.Flags().StringVarP(&listen, "listen", "l", ":8000", "HTTP listen address")
	serveCmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "API key protecting the HTTP surface (env API_KEY)")
	serveCmd.Flags().StringVarP(&database, "database", "d", "", "Path of the local alert database file")
	serveCmd.Flags().StringVarP(&redisURL, "redis", "r", "", "Redis URL for alert storage (overrides --database)")
	serveCmd.Flags().StringVar(&telegramToken, "telegram-token", "", "Telegram bot token (env TELEGRAM_TOKEN)")
	serveCmd.Flags().StringSliceVar(&telegramUsers, "telegram-users", nil, "Authorized Telegram user ids")
	serveCmd.Flags().StringVar(&checkInterval, "check-interval", "10s", "Reconciliation sweep interval")
	serveCmd.Flags().StringVar(&pollInterval, "poll-interval", "5s", "Per-symbol price poll interval")
	serveCmd.Flags().StringVar(&requestTimeout, "request-timeout", "10s", "Upstream request timeout")
	serveCmd.Flags().StringVar(&cooldown, "cooldown", "1m", "Notification cooldown per alert key")

	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, err := buildSettings()
	if err != nil {
		return err
	}

	options := make([]cryptoanalyzer.Option, 0, 1)

	store, err := buildStorage()
	if err != nil {
		return err
	}
	if store != nil {
		options = append(options, cryptoanalyzer.WithStorage(store))
	}

	app, err := cryptoanalyzer.New(settings, options...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}

func buildSettings() (core.Settings, error) {
	settings := core.Settings{
		APIKey: firstNonEmpty(apiKey, os.Getenv("API_KEY")),
		Listen: listen,
	}

	if settings.APIKey == "" {
		return settings, fmt.Errorf("an api key is required, set --api-key or API_KEY")
	}

	var err error
	if settings.Monitor.CheckInterval, err = str2duration.ParseDuration(checkInterval); err != nil {
		return settings, fmt.Errorf("invalid check interval: %w", err)
	}
	if settings.Monitor.PollInterval, err = str2duration.ParseDuration(pollInterval); err != nil {
		return settings, fmt.Errorf("invalid poll interval: %w", err)
	}
	if settings.Monitor.RequestTimeout, err = str2duration.ParseDuration(requestTimeout); err != nil {
		return settings, fmt.Errorf("invalid request timeout: %w", err)
	}
	if settings.Monitor.Cooldown, err = str2duration.ParseDuration(cooldown); err != nil {
		return settings, fmt.Errorf("invalid cooldown: %w", err)
	}

	token := firstNonEmpty(telegramToken, os.Getenv("TELEGRAM_TOKEN"))
	users, err := parseTelegramUsers()
	if err != nil {
		return settings, err
	}

	if token != "" && len(users) > 0 {
		settings.Telegram = core.TelegramSettings{
			Enabled: true,
			Token:   token,
			Users:   users,
		}
	}

	return settings, nil
}

func buildStorage() (core.AlertStorage, error) {
	url := firstNonEmpty(redisURL, os.Getenv("REDIS_URL"))
	if url != "" {
		return storage.FromRedis(url)
	}
	if database != "" {
		return storage.FromFile(database)
	}
	return nil, nil
}

func parseTelegramUsers() ([]int, error) {
	raw := telegramUsers
	if len(raw) == 0 && os.Getenv("TELEGRAM_USERS") != "" {
		raw = strings.Split(os.Getenv("TELEGRAM_USERS"), ",")
	}

	users := make([]int, 0, len(raw))
	for _, entry := range raw {
		id, err := strconv.Atoi(strings.TrimSpace(entry))
		if err != nil {
			return nil, fmt.Errorf("invalid telegram user id %q: %w", entry, err)
		}
		users = append(users, id)
	}
	return users, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
