// Package quantity parses and formats ledger balance strings such as
// "12.50000000 WAX".
package quantity

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Ledger defaults applied when a balance string omits a part or is unusable.
const (
	DefaultSymbol   = "WAX"
	DefaultDecimals = 8
)

// Quantity is an amount of a token together with the precision it was
// reported in. It is a value type; callers never mutate it in place.
type Quantity struct {
	Amount   decimal.Decimal
	Symbol   string
	Decimals uint8
}

// New builds a Quantity from its parts. An empty symbol falls back to
// DefaultSymbol.
func New(amount decimal.Decimal, symbol string, decimals uint8) Quantity {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	return Quantity{Amount: amount, Symbol: symbol, Decimals: decimals}
}

// Zero returns the quantity used for missing or malformed input.
func Zero() Quantity {
	return Quantity{Amount: decimal.Zero, Symbol: DefaultSymbol, Decimals: DefaultDecimals}
}

// Parse reads "<amount> <symbol>". It never fails: malformed or empty input
// yields Zero(), so an all-zero result means "no usable data".
//
// The precision is the number of fractional digits in the literal, or
// DefaultDecimals when the literal has none.
func Parse(input string) Quantity {
	s := strings.TrimSpace(input)
	if s == "" {
		return Zero()
	}

	literal, symbol, _ := strings.Cut(s, " ")
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		symbol = DefaultSymbol
	}
	if strings.ContainsAny(symbol, " \t\n\r") {
		return Zero()
	}

	frac, ok := fractionDigits(literal)
	if !ok {
		return Zero()
	}
	amount, err := decimal.NewFromString(literal)
	if err != nil {
		return Zero()
	}

	decimals := uint8(DefaultDecimals)
	if frac > 0 {
		decimals = uint8(frac)
	}
	return Quantity{Amount: amount, Symbol: symbol, Decimals: decimals}
}

// fractionDigits validates a plain fixed-point literal (digits, optionally
// followed by '.' and more digits) and returns its fractional digit count.
func fractionDigits(literal string) (int, bool) {
	whole, frac, hasDot := strings.Cut(literal, ".")
	if !allDigits(whole) {
		return 0, false
	}
	if !hasDot {
		return 0, true
	}
	if !allDigits(frac) || len(frac) > math.MaxUint8 {
		return 0, false
	}
	return len(frac), true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsZero reports whether the amount is zero.
func (q Quantity) IsZero() bool { return q.Amount.IsZero() }

// Ulp is the smallest representable step at the quantity's precision.
func (q Quantity) Ulp() decimal.Decimal {
	return decimal.New(1, -int32(q.Decimals))
}

// WithAmount returns a copy carrying amount in the same denomination.
func (q Quantity) WithAmount(amount decimal.Decimal) Quantity {
	q.Amount = amount
	return q
}

// Format renders amount in this quantity's denomination, e.g. "1.50000000 WAX".
func (q Quantity) Format(amount decimal.Decimal) string {
	return amount.StringFixed(int32(q.Decimals)) + " " + q.Symbol
}

// String renders the quantity in ledger form.
func (q Quantity) String() string {
	return q.Format(q.Amount)
}
