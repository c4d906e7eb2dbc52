package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if EPIWATCH_CONFIG is set
//  3. env (prefix EPIWATCH_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("EPIWATCH_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: EPIWATCH_ADDR, EPIWATCH_FEED_URL, ...
	// Keys keep their underscores to match the koanf tags on the struct.
	envProvider := env.Provider("EPIWATCH_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "epiwatch_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	switch {
	case cfg.Addr == "":
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case cfg.FeedURL == "":
		return nil, fmt.Errorf("%w: feed_url must not be empty", ErrInvalidConfig)
	case cfg.FetchInterval <= 0:
		return nil, fmt.Errorf("%w: fetch_interval must be positive", ErrInvalidConfig)
	case cfg.FetchTimeout <= 0:
		return nil, fmt.Errorf("%w: fetch_timeout must be positive", ErrInvalidConfig)
	case cfg.StorePath == "":
		return nil, fmt.Errorf("%w: store_path must not be empty", ErrInvalidConfig)
	}
	return &cfg, nil
}
