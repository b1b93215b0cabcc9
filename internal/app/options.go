package service

import (
	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/okian/stakingtier/pkg/logger"
	"github.com/shopspring/decimal"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many event ids are remembered for idempotency.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFeeRate sets the deposit fee as a fraction in [0, 1).
func WithFeeRate(rate decimal.Decimal) Option {
	return func(s *Service) {
		if !rate.IsNegative() && rate.LessThan(decimal.NewFromInt(1)) {
			s.feeRate = rate
		}
	}
}

// WithBufferPercent pads next-tier requirements; zero disables the buffer.
func WithBufferPercent(p decimal.Decimal) Option {
	return func(s *Service) {
		if !p.IsNegative() {
			s.bufferPercent = p
		}
	}
}

// WithSymbol sets the token symbol and precision the ledger uses.
func WithSymbol(symbol string, decimals uint8) Option {
	return func(s *Service) {
		if symbol != "" {
			s.symbol = symbol
			s.decimals = decimals
		}
	}
}

// WithTiers sets the tier table installed on Start.
func WithTiers(defs []tier.Definition) Option {
	return func(s *Service) {
		if len(defs) > 0 {
			s.tiers = defs
		}
	}
}
