// Package types contains the JSON views shared by the service and its
// HTTP adapter. Decimal values travel as strings so no precision is lost.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/stakingtier/internal/domain/engine"
	"github.com/okian/stakingtier/internal/domain/model"
	"github.com/okian/stakingtier/internal/domain/quantity"
	"github.com/okian/stakingtier/internal/domain/tier"
	"github.com/shopspring/decimal"
)

// percentPlaces is the display precision of share and progress percentages.
const percentPlaces = 8

// Conversion errors.
var (
	ErrInvalidDecimal  = errors.New("invalid decimal")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidCooldown = errors.New("cooldown must not be negative")
)

// TierView is the wire form of a tier definition.
type TierView struct {
	ID                    string `json:"id"`
	DisplayName           string `json:"display_name"`
	Multiplier            string `json:"multiplier"`
	UpperThresholdPercent string `json:"upper_threshold_percent"`
}

// NewTierView renders a definition.
func NewTierView(d tier.Definition) TierView { //nolint:gocritic // hugeParam: definitions are values
	return TierView{
		ID:                    string(d.ID),
		DisplayName:           d.DisplayName,
		Multiplier:            d.Multiplier.String(),
		UpperThresholdPercent: d.UpperThresholdPercent.String(),
	}
}

// Definition parses the view back. IDs are validated by tier.NewTable, not here.
func (v TierView) Definition() (tier.Definition, error) {
	mult, err := parseDecimal("multiplier", v.Multiplier)
	if err != nil {
		return tier.Definition{}, err
	}
	upper, err := parseDecimal("upper_threshold_percent", v.UpperThresholdPercent)
	if err != nil {
		return tier.Definition{}, err
	}
	name := v.DisplayName
	if name == "" {
		name = v.ID
	}
	return tier.Definition{
		ID:                    tier.ID(strings.ToLower(strings.TrimSpace(v.ID))),
		DisplayName:           name,
		Multiplier:            mult,
		UpperThresholdPercent: upper,
	}, nil
}

// TierViews renders a tier list in order.
func TierViews(defs []tier.Definition) []TierView {
	out := make([]TierView, len(defs))
	for i := range defs {
		out[i] = NewTierView(defs[i])
	}
	return out
}

// ParseTierViews converts a list of views; the first bad entry fails the call.
func ParseTierViews(views []TierView) ([]tier.Definition, error) {
	out := make([]tier.Definition, 0, len(views))
	for i, v := range views {
		d, err := v.Definition()
		if err != nil {
			return nil, fmt.Errorf("tier %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// TierProgress is the wire form of an engine result.
type TierProgress struct {
	Owner       string    `json:"owner,omitempty"`
	CurrentTier TierView  `json:"current_tier"`
	NextTier    *TierView `json:"next_tier,omitempty"`
	PrevTier    *TierView `json:"prev_tier,omitempty"`

	SharePercent    string `json:"share_percent"`
	ProgressPercent string `json:"progress_percent"`

	StakedAmount      string `json:"staked_amount"`
	TotalStaked       string `json:"total_staked"`
	Symbol            string `json:"symbol"`
	Decimals          uint8  `json:"decimals"`
	SafeUnstakeAmount string `json:"safe_unstake_amount"`

	NextTierReachable           bool    `json:"next_tier_reachable"`
	AdditionalAmountForNextTier *string `json:"additional_amount_for_next_tier,omitempty"`
	TotalAmountForNextTier      *string `json:"total_amount_for_next_tier,omitempty"`
	FeeAmount                   *string `json:"fee_amount,omitempty"`

	RecordedTier string `json:"recorded_tier,omitempty"`
	ClaimStatus  string `json:"claim_status"`
}

// NewTierProgress renders r for owner. recorded is the tier stored on the
// ledger, empty when none.
func NewTierProgress(owner string, recorded tier.ID, r engine.Result) TierProgress { //nolint:gocritic // hugeParam: results are values
	q := quantity.New(decimal.Zero, r.Symbol, r.Decimals)
	optional := func(d *decimal.Decimal) *string {
		if d == nil {
			return nil
		}
		s := q.Format(*d)
		return &s
	}

	out := TierProgress{
		Owner:                       owner,
		CurrentTier:                 NewTierView(r.CurrentTier),
		SharePercent:                r.SharePercent.Round(percentPlaces).String(),
		ProgressPercent:             r.ProgressPercent.Round(percentPlaces).String(),
		StakedAmount:                q.Format(r.StakedAmount),
		TotalStaked:                 q.Format(r.TotalStaked),
		Symbol:                      q.Symbol,
		Decimals:                    r.Decimals,
		SafeUnstakeAmount:           q.Format(r.SafeUnstakeAmount),
		NextTierReachable:           r.NextTierReachable,
		AdditionalAmountForNextTier: optional(r.AdditionalAmountForNextTier),
		TotalAmountForNextTier:      optional(r.TotalAmountForNextTier),
		FeeAmount:                   optional(r.FeeAmount),
		RecordedTier:                string(recorded),
		ClaimStatus:                 string(r.Claim),
	}
	if r.NextTier != nil {
		v := NewTierView(*r.NextTier)
		out.NextTier = &v
	}
	if r.PrevTier != nil {
		v := NewTierView(*r.PrevTier)
		out.PrevTier = &v
	}
	return out
}

// StakerEntry is one row of the staker ranking.
type StakerEntry struct {
	Rank   int    `json:"rank"`
	Owner  string `json:"owner"`
	Staked string `json:"staked"`
	Tier   string `json:"tier,omitempty"`
}

// NewStakerEntry renders a ranking row.
func NewStakerEntry(rank int, owner string, staked quantity.Quantity, id tier.ID) StakerEntry {
	return StakerEntry{Rank: rank, Owner: owner, Staked: staked.String(), Tier: string(id)}
}

// PoolView is the wire form of the pool totals.
type PoolView struct {
	TotalStaked string `json:"total_staked"`
	TotalWeight string `json:"total_weight"`
}

// NewPoolView renders p.
func NewPoolView(p model.PoolState) PoolView { //nolint:gocritic // hugeParam: snapshots are values
	return PoolView{TotalStaked: p.TotalStaked.String(), TotalWeight: p.TotalWeight.String()}
}

// State parses the view. A missing weight defaults to the staked total.
func (v PoolView) State() (model.PoolState, error) {
	staked, err := ParseQuantity(v.TotalStaked)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("total_staked: %w", err)
	}
	if strings.TrimSpace(v.TotalWeight) == "" {
		return model.PoolState{TotalStaked: staked, TotalWeight: staked}, nil
	}
	weight, err := ParseQuantity(v.TotalWeight)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("total_weight: %w", err)
	}
	return model.PoolState{TotalStaked: staked, TotalWeight: weight}, nil
}

// CalculateRequest asks for an ad-hoc evaluation outside the ledger. Unset
// optional fields fall back to the service configuration.
type CalculateRequest struct {
	Stake         string     `json:"stake"`
	TotalStaked   string     `json:"total_staked"`
	FeeRate       *string    `json:"fee_rate,omitempty"`
	BufferPercent *string    `json:"buffer_percent,omitempty"`
	ClaimedTier   string     `json:"claimed_tier,omitempty"`
	Tiers         []TierView `json:"tiers,omitempty"`
}

// Input builds an engine input using the given defaults for unset fields.
// Balance strings follow the lenient ledger rule: malformed means zero.
func (r CalculateRequest) Input(feeRate, bufferPercent decimal.Decimal, tiers []tier.Definition) (engine.Input, error) { //nolint:gocritic // hugeParam: requests are values
	in := engine.Input{
		Stake:         quantity.Parse(r.Stake),
		FeeRate:       feeRate,
		BufferPercent: bufferPercent,
		Tiers:         tiers,
		ClaimedTier:   tier.ID(strings.ToLower(strings.TrimSpace(r.ClaimedTier))),
	}
	total := quantity.Parse(r.TotalStaked)
	in.Pool = model.PoolState{TotalStaked: total, TotalWeight: total}

	var err error
	if r.FeeRate != nil {
		if in.FeeRate, err = parseDecimal("fee_rate", *r.FeeRate); err != nil {
			return engine.Input{}, err
		}
	}
	if r.BufferPercent != nil {
		if in.BufferPercent, err = parseDecimal("buffer_percent", *r.BufferPercent); err != nil {
			return engine.Input{}, err
		}
	}
	if len(r.Tiers) > 0 {
		if in.Tiers, err = ParseTierViews(r.Tiers); err != nil {
			return engine.Input{}, err
		}
	}
	return in, nil
}

// EventRequest is the wire form of a ledger event.
type EventRequest struct {
	EventID         string    `json:"event_id"`
	Owner           string    `json:"owner"`
	Kind            string    `json:"kind"`
	Quantity        string    `json:"quantity,omitempty"`
	Tier            string    `json:"tier,omitempty"`
	CooldownSeconds int64     `json:"cooldown_seconds,omitempty"`
	TS              time.Time `json:"ts"`
}

// Event converts and validates the request. now stamps events without a
// ledger timestamp.
func (r EventRequest) Event(now time.Time) (model.LedgerEvent, error) { //nolint:gocritic // hugeParam: requests are values
	kind, err := model.ParseEventKind(r.Kind)
	if err != nil {
		return model.LedgerEvent{}, err
	}
	ev := model.LedgerEvent{
		EventID:  strings.TrimSpace(r.EventID),
		Owner:    strings.TrimSpace(r.Owner),
		Kind:     kind,
		Tier:     tier.ID(strings.ToLower(strings.TrimSpace(r.Tier))),
		Cooldown: time.Duration(r.CooldownSeconds) * time.Second,
		TS:       r.TS,
	}
	if kind == model.KindStake || kind == model.KindUnstake {
		if ev.Quantity, err = ParseQuantity(r.Quantity); err != nil {
			return model.LedgerEvent{}, err
		}
	}
	if r.CooldownSeconds < 0 {
		return model.LedgerEvent{}, ErrInvalidCooldown
	}
	if ev.TS.IsZero() {
		ev.TS = now
	}
	return ev, ev.Validate()
}

// ParseQuantity is the strict counterpart of quantity.Parse for values the
// service is asked to store: malformed input is an error, not zero.
func ParseQuantity(s string) (quantity.Quantity, error) {
	s = strings.TrimSpace(s)
	literal, _, _ := strings.Cut(s, " ")
	if _, err := decimal.NewFromString(literal); err != nil || strings.HasPrefix(literal, "-") {
		return quantity.Quantity{}, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	q := quantity.Parse(s)
	if q.IsZero() && !isZeroLiteral(literal) {
		return quantity.Quantity{}, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	return q, nil
}

func isZeroLiteral(literal string) bool {
	return strings.Trim(literal, "0.") == "" && strings.Count(literal, ".") <= 1
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidDecimal, field, s)
	}
	return d, nil
}
