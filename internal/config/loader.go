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
	"github.com/shopspring/decimal"
)

// Environment variables read by Load.
const (
	EnvPrefix     = "STAKETIER_"
	EnvConfigPath = "STAKETIER_CONFIG"
)

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New)
//  2. a YAML file when STAKETIER_CONFIG is set
//  3. env vars with the STAKETIER_ prefix
//
// The tier table can only come from defaults or the file.
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)
	k := koanf.New(".")

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// STAKETIER_QUEUE_SIZE -> queue_size; underscores are kept to match the
	// flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	// Slices are decoded in place; start empty so a shorter file table does
	// not inherit trailing default tiers.
	cfg.Tiers = nil
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultTiers()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that have no usable fallback.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.MaxStakersLimit <= 0:
		return fmt.Errorf("%w: max_stakers_limit must be positive", ErrInvalidConfig)
	}
	fee, err := c.Fee()
	if err != nil {
		return err
	}
	if fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: fee_rate must be in [0, 1)", ErrInvalidConfig)
	}
	if _, err := c.Buffer(); err != nil {
		return err
	}
	if _, err := c.TierDefinitions(); err != nil {
		return err
	}
	return nil
}
