// Package model contains the ledger records passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/tier"
)

// Validation errors for ledger events.
var (
	ErrMissingEventID = errors.New("missing event id")
	ErrMissingOwner   = errors.New("missing owner")
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrZeroAmount     = errors.New("amount must be positive")
	ErrMissingTier    = errors.New("missing tier")
)

// PoolState is the aggregate of all participants' principal.
type PoolState struct {
	TotalStaked quantity.Quantity
	TotalWeight quantity.Quantity
}

// StakeAccount is one participant's position as recorded on the ledger.
// Tier is the tier the ledger last stored for the owner and may lag the
// tier the stake actually resolves to.
type StakeAccount struct {
	Owner         string
	StakedAmount  quantity.Quantity
	Tier          tier.ID
	LastClaimedAt time.Time
	CooldownEndAt time.Time
}

// EventKind enumerates ledger actions the service ingests.
type EventKind string

// Ledger event kinds.
const (
	KindStake      EventKind = "stake"
	KindUnstake    EventKind = "unstake"
	KindClaim      EventKind = "claim"
	KindTierChange EventKind = "tier_change"
)

// ParseEventKind normalises s into a known EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindStake, KindUnstake, KindClaim, KindTierChange:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// LedgerEvent is one ledger action affecting a stake account.
type LedgerEvent struct {
	EventID  string            // ledger action id, used for idempotency
	Owner    string            // account the action applies to
	Kind     EventKind         // what happened
	Quantity quantity.Quantity // gross amount for stake/unstake
	Tier     tier.ID           // recorded tier for tier_change
	Cooldown time.Duration     // unstake cooldown, zero when none
	TS       time.Time         // ledger timestamp
}

// Validate checks that the fields required by the event's kind are present.
func (e LedgerEvent) Validate() error { //nolint:gocritic // hugeParam: events travel by value
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return ErrMissingEventID
	case strings.TrimSpace(e.Owner) == "":
		return ErrMissingOwner
	}
	switch e.Kind {
	case KindStake, KindUnstake:
		if !e.Quantity.Amount.IsPositive() {
			return ErrZeroAmount
		}
	case KindTierChange:
		if e.Tier == "" {
			return ErrMissingTier
		}
	case KindClaim:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(e.Kind))
	}
	return nil
}
