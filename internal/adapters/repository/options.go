package repository

import (
	"time"

	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/shopspring/decimal"
)

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithMetricsUpdateInterval sets the interval for background gauge updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *TreapStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithFeeRate sets the deposit fee applied by ApplyStake.
func WithFeeRate(rate decimal.Decimal) Option {
	return func(s *TreapStore) {
		if !rate.IsNegative() && rate.LessThan(decimal.NewFromInt(1)) {
			s.feeRate = rate
		}
	}
}

// WithSymbol sets the pool's token symbol and ledger precision.
func WithSymbol(symbol string, decimals uint8) Option {
	return func(s *TreapStore) {
		if symbol != "" {
			s.symbol = symbol
			s.decimals = decimals
		}
	}
}

// WithTiers seeds the tier table. An invalid table is ignored.
func WithTiers(defs []tier.Definition) Option {
	return func(s *TreapStore) {
		if table, err := tier.NewTable(defs); err == nil {
			s.tiers = table
		}
	}
}
