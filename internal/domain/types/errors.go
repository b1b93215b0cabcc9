package types

import "errors"

// Request outcome classes shared by the service and the HTTP layer.
var (
	// ErrInvalidInput wraps every request validation failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoResult means a tier calculation had nothing to compute from: an
	// empty pool, no tiers or an inconsistent tier table.
	ErrNoResult = errors.New("no tier result")
)
