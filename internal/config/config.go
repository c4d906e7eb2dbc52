// Package config defines service configuration structures and loading hooks.
package config

import "time"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// FeedURL is the upstream tabular feed endpoint.
	FeedURL string `koanf:"feed_url"`

	// FetchInterval is the reconciliation polling interval.
	FetchInterval time.Duration `koanf:"fetch_interval"`

	// FetchTimeout bounds one feed fetch attempt.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// StorePath locates the durable subscription database.
	StorePath string `koanf:"store_path"`

	// AliasFile optionally merges a YAML alias table over the built-ins.
	AliasFile string `koanf:"alias_file"`

	// MaxSubscriptions caps watches per subscriber; 0 disables the cap.
	MaxSubscriptions int `koanf:"max_subscriptions"`

	// MaxRankingLimit caps GET /ranking?limit.
	MaxRankingLimit int `koanf:"max_ranking_limit"`

	// NotifyWorkers sets concurrent notification deliveries per tick.
	NotifyWorkers int `koanf:"notify_workers"`

	// WebhookURL, when set, delivers notifications by HTTP POST instead of
	// the structured log.
	WebhookURL string `koanf:"webhook_url"`

	// UserAgent is sent on feed fetches.
	UserAgent string `koanf:"user_agent"`
}

// New returns a Config carrying the defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9080",
		FetchInterval:    20 * time.Minute,
		FetchTimeout:     2 * time.Minute,
		StorePath:        "epiwatch.db",
		MaxSubscriptions: 10,
		MaxRankingLimit:  100,
		NotifyWorkers:    4,
		UserAgent:        "epiwatch/1.0",
	}
}
