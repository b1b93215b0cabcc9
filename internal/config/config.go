// Package config defines service configuration and its defaults.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/shopspring/decimal"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory ledger event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ledger workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many ledger event ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxStakersLimit caps GET /stakers?limit.
	MaxStakersLimit int `koanf:"max_stakers_limit"`

	// FeeRate is the deposit fee as a fraction, e.g. "0.003".
	FeeRate string `koanf:"fee_rate"`

	// BufferPercent pads next-tier requirements, e.g. "2.5".
	BufferPercent string `koanf:"buffer_percent"`

	// Symbol is the token ticker of the pool.
	Symbol string `koanf:"symbol"`

	// Tiers is the reward tier table.
	Tiers []TierConfig `koanf:"tiers"`
}

// TierConfig is one tier as written in configuration. Numbers are strings so
// that no precision is lost before they reach decimal.
type TierConfig struct {
	ID                    string `koanf:"id"`
	DisplayName           string `koanf:"display_name"`
	Multiplier            string `koanf:"multiplier"`
	UpperThresholdPercent string `koanf:"upper_threshold_percent"`
}

// DefaultTiers is the table used when none is configured.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{ID: "bronze", DisplayName: "Bronze", Multiplier: "1", UpperThresholdPercent: "0.01"},
		{ID: "silver", DisplayName: "Silver", Multiplier: "1.1", UpperThresholdPercent: "0.1"},
		{ID: "gold", DisplayName: "Gold", Multiplier: "1.25", UpperThresholdPercent: "1"},
		{ID: "platinum", DisplayName: "Platinum", Multiplier: "1.5", UpperThresholdPercent: "5"},
		{ID: "diamond", DisplayName: "Diamond", Multiplier: "2", UpperThresholdPercent: "100"},
	}
}

// New returns a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		EventQueueSize:  100_000,
		WorkerCount:     runtime.NumCPU() * 2,
		DedupeSize:      500_000,
		MaxStakersLimit: 100,
		FeeRate:         "0.003",
		BufferPercent:   "0",
		Symbol:          quantity.DefaultSymbol,
		Tiers:           DefaultTiers(),
	}
}

// Fee parses FeeRate.
func (c *Config) Fee() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.FeeRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: fee_rate %q", ErrInvalidConfig, c.FeeRate)
	}
	return d, nil
}

// Buffer parses BufferPercent. An empty value means no buffer.
func (c *Config) Buffer() (decimal.Decimal, error) {
	s := strings.TrimSpace(c.BufferPercent)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: buffer_percent %q", ErrInvalidConfig, c.BufferPercent)
	}
	return d, nil
}

// TierDefinitions converts the configured tiers into a validated table.
// IDs are normalised here, once; the engine compares them verbatim.
func (c *Config) TierDefinitions() ([]tier.Definition, error) {
	defs := make([]tier.Definition, 0, len(c.Tiers))
	for i, tc := range c.Tiers {
		def, err := tc.definition()
		if err != nil {
			return nil, fmt.Errorf("%w: tiers[%d]: %w", ErrInvalidConfig, i, err)
		}
		defs = append(defs, def)
	}
	table, err := tier.NewTable(defs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return table.Definitions(), nil
}

func (tc TierConfig) definition() (tier.Definition, error) {
	mult, err := decimal.NewFromString(strings.TrimSpace(tc.Multiplier))
	if err != nil {
		return tier.Definition{}, fmt.Errorf("multiplier %q: %w", tc.Multiplier, err)
	}
	upper, err := decimal.NewFromString(strings.TrimSpace(tc.UpperThresholdPercent))
	if err != nil {
		return tier.Definition{}, fmt.Errorf("upper_threshold_percent %q: %w", tc.UpperThresholdPercent, err)
	}
	id := strings.ToLower(strings.TrimSpace(tc.ID))
	name := strings.TrimSpace(tc.DisplayName)
	if name == "" {
		name = id
	}
	return tier.Definition{
		ID:                    tier.ID(id),
		DisplayName:           name,
		Multiplier:            mult,
		UpperThresholdPercent: upper,
	}, nil
}
