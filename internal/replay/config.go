// Package replay drives a running staking tier service with a generated
// ledger history and checks the service's answers against the history.
package replay

import (
	"runtime"
	"time"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultBaseURL           = "http://localhost:9080"
	DefaultOwners            = 500
	DefaultMaxStakesPerOwner = 4
	DefaultTopN              = 50
	DefaultTimeout           = 30 * time.Second
	DefaultSettleTimeout     = 2 * time.Minute
	DefaultPollInterval      = 100 * time.Millisecond

	defaultDuplicateRatio = 0.1
	defaultUnstakeRatio   = 0.5
	quietPolls            = 3
)

// Config holds the settings of one replay run.
type Config struct {
	BaseURL           string        // service base URL
	Owners            int           // distinct stakers to generate
	MaxStakesPerOwner int           // each owner stakes 1..N times
	DuplicateRatio    float64       // share of stakes submitted twice
	UnstakeRatio      float64       // share of owners that withdraw part of their stake
	TopN              int           // ranking page checked for ordering
	Workers           int           // concurrent HTTP requests
	Timeout           time.Duration // per request
	SettleTimeout     time.Duration // how long to wait for the queue to drain
	PollInterval      time.Duration
	Seed              uint64 // amounts are reproducible for a given seed
	OutputFile        string // where to write the submitted events, empty to skip
	Verbose           bool
}

func (c Config) withDefaults() Config { //nolint:gocritic // hugeParam: config is a value
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Owners <= 0 {
		c.Owners = DefaultOwners
	}
	if c.MaxStakesPerOwner <= 0 {
		c.MaxStakesPerOwner = DefaultMaxStakesPerOwner
	}
	if c.DuplicateRatio < 0 {
		c.DuplicateRatio = defaultDuplicateRatio
	}
	if c.UnstakeRatio < 0 {
		c.UnstakeRatio = defaultUnstakeRatio
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU() * 2
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = DefaultSettleTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Stats summarises a run.
type Stats struct {
	EventsPlanned   int
	EventsAccepted  int
	EventsDuplicate int
	EventsFailed    int
	OwnersChecked   int
	Mismatches      []string
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
