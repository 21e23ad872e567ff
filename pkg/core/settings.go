package core

import "time"

// Settings represents the main configuration for the application
type Settings struct {
	APIKey   string // key required by the HTTP API gate
	Listen   string // HTTP listen address
	Monitor  MonitorSettings
	Telegram TelegramSettings
}

// MonitorSettings paces the alert monitoring subsystem. Zero values
// fall back to the defaults in pkg/alert.
type MonitorSettings struct {
	CheckInterval  time.Duration // reconciliation sweep interval
	PollInterval   time.Duration // per-symbol price poll interval
	RequestTimeout time.Duration // upstream request timeout
	Cooldown       time.Duration // notification spam window
	MaxFailures    int           // consecutive fetch failures before a stream gives up
}

// TelegramSettings holds configuration for Telegram integration
type TelegramSettings struct {
	Enabled bool   // Whether Telegram notifications are enabled
	Token   string // Telegram bot token
	Users   []int  // List of authorized user IDs
}
