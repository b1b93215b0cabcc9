package repository

import "errors"

// Sentinel kinds for ledger store errors.
var (
	ErrNotFound          = errors.New("stake account not found")
	ErrInvalidLimit      = errors.New("invalid stakers limit")
	ErrInsufficientStake = errors.New("insufficient stake")
	ErrSymbolMismatch    = errors.New("token symbol does not match pool")
	ErrInvalidAmount     = errors.New("amount must be positive")
)
